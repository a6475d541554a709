package container

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mohitkumar/convoflow/config"
	"github.com/mohitkumar/convoflow/model"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	tests := map[string]config.Config{
		"memory": {StorageType: config.STORAGE_TYPE_INMEM},
		"sqlite": {StorageType: config.STORAGE_TYPE_SQLITE, SqliteConfig: config.SqliteStorageConfig{Path: filepath.Join(t.TempDir(), "flows.db")}},
	}
	for name, conf := range tests {
		t.Run(name, func(t *testing.T) {
			d := NewDiContainer()
			require.NoError(t, d.Init(conf))
			defer d.Close()
			storage := d.GetStorage()
			ctx := context.Background()
			fc := &model.FlowContext{Id: "c1", OrganizationId: 1, ContactId: 2, FlowUuid: "f", State: model.ACTIVE}
			require.NoError(t, storage.Contexts.SaveContext(ctx, fc))
			live, err := storage.Contexts.GetLiveContext(ctx, 1, 2)
			require.NoError(t, err)
			require.Equal(t, "c1", live.Id)
		})
	}
}

func TestInitUnknownStorage(t *testing.T) {
	d := NewDiContainer()
	require.Error(t, d.Init(config.Config{StorageType: "dynamo"}))
	require.Panics(t, func() { d.GetStorage() })
}
