package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"session-scheduler-backend/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import sessions, machines and hardware from a YAML or JSON catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	catalog, err := readCatalog(args[0])
	if err != nil {
		return err
	}
	if err := loadConfig(); err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.ImportCatalog(cmd.Context(), catalog); err != nil {
		return err
	}
	fmt.Printf("Imported %d sessions, %d machines, %d hardware combinations.\n",
		len(catalog.Sessions), len(catalog.Machines), len(catalog.Combinations))
	return nil
}

func readCatalog(path string) (store.Catalog, error) {
	var c store.Catalog
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &c)
	default:
		err = yaml.Unmarshal(data, &c)
	}
	if err != nil {
		return c, fmt.Errorf("decode %s: %w", path, err)
	}
	return c, nil
}
