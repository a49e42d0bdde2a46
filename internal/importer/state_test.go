package importer_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reelmatch/reelmatch/internal/importer"
	"github.com/reelmatch/reelmatch/internal/models"
	"github.com/reelmatch/reelmatch/internal/testsupport"
)

func TestStateMachineLifecycle(t *testing.T) {
	ctx := context.Background()
	m := importer.NewStateMachine(testsupport.Logger(t))
	file := &models.ImportFile{}

	for _, step := range []struct {
		name string
		want models.ImportFileStatus
	}{
		{"upload", models.ImportUploaded},
		{"process", models.ImportProcessing},
		{"done", models.ImportDone},
	} {
		tr, err := m.Apply(ctx, file, step.name)
		require.NoError(t, err, step.name)
		require.Equal(t, step.want, tr.To)
		require.Equal(t, step.want, file.Status)
	}
}

func TestStateMachineGuardsInadmissibleEdges(t *testing.T) {
	ctx := context.Background()
	m := importer.NewStateMachine(testsupport.Logger(t))

	cases := []struct {
		from models.ImportFileStatus
		name string
	}{
		{models.ImportDone, "process"},
		{models.ImportProcessing, "process"},
		{models.ImportUploaded, "done"},
		{models.ImportDone, "failed"},
		{models.ImportUploaded, "upload"},
	}
	for _, c := range cases {
		file := &models.ImportFile{Status: c.from}
		_, err := m.Apply(ctx, file, c.name)

		var invalid *importer.InvalidTransitionError
		require.ErrorAs(t, err, &invalid, "%s from %s", c.name, c.from)
		require.Equal(t, "INVALID_STATUS_TRANSITION", invalid.Kind())
		require.Equal(t, c.from, file.Status, "status must be untouched")
	}
}

func TestStateMachineReuploadAfterFailure(t *testing.T) {
	ctx := context.Background()
	m := importer.NewStateMachine(testsupport.Logger(t))
	file := &models.ImportFile{Status: models.ImportFailed}

	_, err := m.Apply(ctx, file, "upload")
	require.NoError(t, err)
	require.Equal(t, models.ImportUploaded, file.Status)
}

func TestStateMachineUnknownTransition(t *testing.T) {
	m := importer.NewStateMachine(testsupport.Logger(t))
	file := &models.ImportFile{Status: models.ImportUploaded}

	_, err := m.Apply(context.Background(), file, "archive")
	var invalid *importer.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestStateMachineBeforeHookVetoes(t *testing.T) {
	ctx := context.Background()
	m := importer.NewStateMachine(testsupport.Logger(t))

	var order []string
	m.Before(func(_ context.Context, _ *models.ImportFile, tr importer.Transition) error {
		order = append(order, "first:"+tr.Name)
		return nil
	})
	m.Before(func(_ context.Context, _ *models.ImportFile, _ importer.Transition) error {
		order = append(order, "second")
		return errors.New("quota exceeded")
	})

	file := &models.ImportFile{Status: models.ImportUploaded}
	_, err := m.Apply(ctx, file, "process")
	require.ErrorContains(t, err, "quota exceeded")
	require.Equal(t, models.ImportUploaded, file.Status, "veto must leave status untouched")
	require.Equal(t, []string{"first:process", "second"}, order)
}

func TestStateMachineAfterHookFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	m := importer.NewStateMachine(testsupport.Logger(t))

	seen := 0
	m.After(func(_ context.Context, f *models.ImportFile, _ importer.Transition) error {
		seen++
		require.Equal(t, models.ImportProcessing, f.Status, "after-hooks observe the new status")
		return fmt.Errorf("notifier down")
	})
	m.After(func(_ context.Context, _ *models.ImportFile, _ importer.Transition) error {
		seen++
		return nil
	})

	file := &models.ImportFile{Status: models.ImportUploaded}
	_, err := m.Apply(ctx, file, "process")
	require.NoError(t, err, "after-hook failures are logged, never propagated")
	require.Equal(t, models.ImportProcessing, file.Status)
	require.Equal(t, 2, seen, "a failing after-hook must not stop later hooks")
}
