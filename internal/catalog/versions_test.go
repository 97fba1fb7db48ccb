package catalog_test

import (
	"context"
	"errors"
	"testing"

	"podium/internal/artifact"
	"podium/internal/catalog"
	"podium/internal/services"
	"podium/internal/testsupport"
)

func TestAppendVersionBumpsLabel(t *testing.T) {
	t.Parallel()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ensemble := testsupport.NewEnsemble(t, store, "Brass Band")
	arrangement := testsupport.NewArrangement(t, store, ensemble.ID, "Fanfare")
	ctx := context.Background()

	steps := []struct {
		bump  catalog.Bump
		label string
	}{
		{catalog.BumpPatch, "0.0.1"},
		{catalog.BumpMinor, "0.1.0"},
		{catalog.BumpPatch, "0.1.1"},
		{catalog.BumpMajor, "1.0.0"},
	}
	for _, step := range steps {
		version, err := store.AppendVersion(ctx, arrangement.ID, "fanfare.mscz", step.bump)
		if err != nil {
			t.Fatalf("AppendVersion(%s): %v", step.bump, err)
		}
		if version.Label() != step.label {
			t.Fatalf("after %s bump label = %s, want %s", step.bump, version.Label(), step.label)
		}
		if !version.IsLatest {
			t.Fatalf("appended version %s is not latest", version.Label())
		}
	}

	latest, err := store.LatestVersion(ctx, arrangement.ID)
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if latest == nil || latest.Label() != "1.0.0" {
		t.Fatalf("latest = %+v, want 1.0.0", latest)
	}

	versions, err := store.ListVersions(ctx, arrangement.ID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != len(steps) {
		t.Fatalf("ListVersions returned %d versions, want %d", len(versions), len(steps))
	}
	latestCount := 0
	for _, version := range versions {
		if version.IsLatest {
			latestCount++
		}
	}
	if latestCount != 1 {
		t.Fatalf("%d versions flagged latest, want exactly 1", latestCount)
	}
}

func TestVersionStorageKeys(t *testing.T) {
	t.Parallel()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ensemble := testsupport.NewEnsemble(t, store, "Campus Winds")
	arrangement := testsupport.NewArrangement(t, store, ensemble.ID, "Night Flight")
	version := testsupport.NewVersion(t, store, arrangement.ID, "night-flight.mscz", catalog.BumpMinor)

	checks := map[string]string{
		version.RawKey():            "ensembles/campus-winds/night-flight/0.1.0/raw/night-flight.mscz",
		version.ProcessedKey():      "ensembles/campus-winds/night-flight/0.1.0/processed/night-flight.mscz",
		version.ScorePDFKey():       "ensembles/campus-winds/night-flight/0.1.0/processed/night-flight - Score+Parts.pdf",
		version.AudioKey():          "ensembles/campus-winds/night-flight/0.1.0/processed/night-flight.mp3",
		version.PartPDFKey("Flute"): "ensembles/campus-winds/night-flight/0.1.0/processed/night-flight - Flute.pdf",
	}
	for got, want := range checks {
		if got != want {
			t.Fatalf("key = %q, want %q", got, want)
		}
	}
	if version.FullLabel() != "v0.1.0" {
		t.Fatalf("FullLabel = %q, want v0.1.0", version.FullLabel())
	}
}

func TestAudioLifecycle(t *testing.T) {
	t.Parallel()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ensemble := testsupport.NewEnsemble(t, store, "Quintet")
	arrangement := testsupport.NewArrangement(t, store, ensemble.ID, "Overture")
	version := testsupport.NewVersion(t, store, arrangement.ID, "overture.mscz", catalog.BumpPatch)
	ctx := context.Background()

	if err := store.TriggerAudio(ctx, version.ID, "job-1"); err != nil {
		t.Fatalf("TriggerAudio: %v", err)
	}
	if err := store.TriggerAudio(ctx, version.ID, "job-2"); !errors.Is(err, services.ErrAlreadyInProgress) {
		t.Fatalf("second TriggerAudio error = %v, want ErrAlreadyInProgress", err)
	}

	obs, err := store.AudioObservation(ctx, version.ID)
	if err != nil {
		t.Fatalf("AudioObservation: %v", err)
	}
	if obs.State != artifact.StateProcessing {
		t.Fatalf("state = %s, want processing", obs.State)
	}

	if err := store.CompleteAudio(ctx, version.ID); err != nil {
		t.Fatalf("CompleteAudio: %v", err)
	}
	if err := store.TriggerAudio(ctx, version.ID, "job-3"); !errors.Is(err, services.ErrAlreadyComplete) {
		t.Fatalf("TriggerAudio after complete error = %v, want ErrAlreadyComplete", err)
	}

	obs, err = store.AudioObservation(ctx, version.ID)
	if err != nil {
		t.Fatalf("AudioObservation: %v", err)
	}
	if obs.State != artifact.StateComplete {
		t.Fatalf("state = %s, want complete", obs.State)
	}
	if obs.ResultKey != version.AudioKey() {
		t.Fatalf("result key = %q, want %q", obs.ResultKey, version.AudioKey())
	}
}

func TestFailAudioAllowsRetry(t *testing.T) {
	t.Parallel()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ensemble := testsupport.NewEnsemble(t, store, "Choir")
	arrangement := testsupport.NewArrangement(t, store, ensemble.ID, "Hymn")
	version := testsupport.NewVersion(t, store, arrangement.ID, "hymn.mscz", catalog.BumpPatch)
	ctx := context.Background()

	if err := store.TriggerAudio(ctx, version.ID, "job-1"); err != nil {
		t.Fatalf("TriggerAudio: %v", err)
	}
	if err := store.FailAudio(ctx, version.ID, "synth crashed"); err != nil {
		t.Fatalf("FailAudio: %v", err)
	}

	obs, err := store.AudioObservation(ctx, version.ID)
	if err != nil {
		t.Fatalf("AudioObservation: %v", err)
	}
	if obs.State != artifact.StateError || obs.ErrorMessage != "synth crashed" {
		t.Fatalf("observation = %+v, want error state with message", obs)
	}

	if err := store.TriggerAudio(ctx, version.ID, "job-2"); err != nil {
		t.Fatalf("retry TriggerAudio: %v", err)
	}
}

func TestFinishAudioWithoutJobRejected(t *testing.T) {
	t.Parallel()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ensemble := testsupport.NewEnsemble(t, store, "Duo")
	arrangement := testsupport.NewArrangement(t, store, ensemble.ID, "Etude")
	version := testsupport.NewVersion(t, store, arrangement.ID, "etude.mscz", catalog.BumpPatch)

	if err := store.CompleteAudio(context.Background(), version.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("CompleteAudio without job error = %v, want ErrValidation", err)
	}
}
