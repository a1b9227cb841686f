package main

import (
	"fmt"
	"os"

	"github.com/mikesmullin/daemon-sub001/internal/config"
	"github.com/mikesmullin/daemon-sub001/internal/sessionstore"
	"github.com/mikesmullin/daemon-sub001/internal/workspace"
)

func openStore(configPath string) (*config.Daemon, *sessionstore.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	root, err := workspace.New(cfg.Workspace.Root)
	if err != nil {
		return nil, nil, err
	}
	store, err := sessionstore.New(root, nil)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func runSessionCreate(configPath, template, prompt string) (string, error) {
	_, store, err := openStore(configPath)
	if err != nil {
		return "", err
	}
	defer store.Close()

	id, err := store.NewSession(template, prompt)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

func runSessionList(configPath string) error {
	_, store, err := openStore(configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.List()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	w := os.Stdout
	fmt.Fprintf(w, "%-8s %-12s %-20s %-10s %s\n", "ID", "STATE", "MODEL", "MESSAGES", "LAST MESSAGE")
	for _, s := range summaries {
		fmt.Fprintf(w, "%-8s %-12s %-20s %-10d %s\n", s.ID, s.State, s.Model, s.MessageCount, s.LastMessage)
	}
	return nil
}
