package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"podium/internal/catalog"
)

func lookupEnsemble(ctx context.Context, store *catalog.Store, slug string) (*catalog.Ensemble, error) {
	ensemble, err := store.GetEnsembleBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if ensemble == nil {
		return nil, fmt.Errorf("ensemble %q not found", slug)
	}
	return ensemble, nil
}

func lookupArrangement(ctx context.Context, store *catalog.Store, ensembleSlug, arrangementSlug string) (*catalog.Ensemble, *catalog.Arrangement, error) {
	ensemble, err := lookupEnsemble(ctx, store, ensembleSlug)
	if err != nil {
		return nil, nil, err
	}
	arrangement, err := store.GetArrangementBySlug(ctx, ensemble.ID, arrangementSlug)
	if err != nil {
		return nil, nil, err
	}
	if arrangement == nil {
		return nil, nil, fmt.Errorf("arrangement %q not found in ensemble %q", arrangementSlug, ensembleSlug)
	}
	return ensemble, arrangement, nil
}

func parseID(value, what string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, value)
	}
	return id, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
