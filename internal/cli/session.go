package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"marketsim/internal/competitor"
	"marketsim/internal/pressure"
)

// RunReport is the saved outcome of an offline simulation.
type RunReport struct {
	SessionID   string                `json:"session_id"`
	Seed        int64                 `json:"seed"`
	Ticks       int                   `json:"ticks"`
	FinishedAt  time.Time             `json:"finished_at"`
	Index       float64               `json:"index"`
	Tier        pressure.Tier         `json:"tier"`
	TaxPaid     float64               `json:"tax_paid"`
	Settlements int                   `json:"settlements"`
	Rankings    []competitor.Standing `json:"rankings"`
}

// BaseDir is where the CLI keeps local state. Tests may point it elsewhere.
var BaseDir = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".msim"), nil
}

func reportPath() (string, error) {
	dir, err := BaseDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "last_run.json"), nil
}

func SaveReport(r RunReport) error {
	path, err := reportPath()
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o600)
}

func LoadReport() (RunReport, error) {
	path, err := reportPath()
	if err != nil {
		return RunReport{}, err
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return RunReport{}, err
	}
	var r RunReport
	if err := json.Unmarshal(body, &r); err != nil {
		return RunReport{}, err
	}
	if r.Ticks == 0 {
		return RunReport{}, fmt.Errorf("saved report is empty")
	}
	return r, nil
}

func ClearReport() error {
	path, err := reportPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return os.Remove(path)
}
