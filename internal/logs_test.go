package internal

import (
	"encoding/json"
	"net/http"
	"testing"

	"device-inventory-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logList struct {
	Data []models.LogEntryWithNames `json:"data"`
	Meta listMeta                   `json:"meta"`
}

func (ts *testServer) listLogs(t *testing.T, query string) logList {
	t.Helper()
	w := ts.do(t, "GET", "/logs"+query, ts.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var list logList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	return list
}

func TestListLogs(t *testing.T) {
	ts := newTestServer(t)

	ts.createDevice(t, map[string]string{"type": "laptop", "brand": "Dell", "model": "XPS"})
	ts.createDevice(t, map[string]string{"type": "tablet", "brand": "Apple", "model": "iPad"})
	w := ts.do(t, "PUT", "/devices/1", ts.adminToken, map[string]string{"status": "sold", "assigned_to": ""})
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, "DELETE", "/devices/2", ts.adminToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	all := ts.listLogs(t, "")
	require.Len(t, all.Data, 4)
	assert.Equal(t, 4, all.Meta.Total)
	ops := make([]models.Operation, len(all.Data))
	for i, e := range all.Data {
		ops[i] = e.Operation
	}
	assert.Equal(t, []models.Operation{
		models.OperationCreate, models.OperationCreate, models.OperationUpdate, models.OperationDelete,
	}, ops)

	update := all.Data[2]
	assert.Equal(t, testAdminID, update.PerformedBy)
	require.NotNil(t, update.PerformedByName)
	assert.Equal(t, "root", *update.PerformedByName)
	assert.Equal(t, "1", update.Details["uid"])
	assert.Equal(t, "sold", update.Details["status"])
	assert.Equal(t, "", update.Details["assigned_to"])
	assert.Equal(t, []string{"status"}, update.ChangedFields)

	deleted := all.Data[3]
	assert.Equal(t, testAdminID, deleted.PerformedBy)
	assert.Equal(t, "Apple", deleted.Details["brand"])
	assert.Equal(t, "iPad", deleted.Details["model"])
}

func TestListLogsFilters(t *testing.T) {
	ts := newTestServer(t)

	ts.createDevice(t, map[string]string{"type": "laptop", "brand": "Dell", "model": "XPS"})
	ts.createDevice(t, map[string]string{"type": "tablet", "brand": "Apple", "model": "iPad"})
	w := ts.do(t, "PUT", "/devices/2", ts.adminToken, map[string]string{"status": "broken"})
	require.Equal(t, http.StatusOK, w.Code)

	byDevice := ts.listLogs(t, "?device_uid=2")
	require.Len(t, byDevice.Data, 2)
	for _, e := range byDevice.Data {
		assert.Equal(t, int64(2), e.DeviceUID)
	}

	byOp := ts.listLogs(t, "?operation=UPD")
	require.Len(t, byOp.Data, 1)
	assert.Equal(t, models.OperationUpdate, byOp.Data[0].Operation)

	desc := ts.listLogs(t, "?sort=-timestamp&limit=1")
	require.Len(t, desc.Data, 1)
	assert.Equal(t, 3, desc.Meta.Total)
	assert.Equal(t, models.OperationUpdate, desc.Data[0].Operation)

	none := ts.listLogs(t, "?device_uid=99")
	assert.NotNil(t, none.Data)
	assert.Empty(t, none.Data)
}

func TestListLogsRejectsBadDeviceUID(t *testing.T) {
	ts := newTestServer(t)

	for _, q := range []string{"?device_uid=abc", "?device_uid=0"} {
		w := ts.do(t, "GET", "/logs"+q, ts.adminToken, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
		assert.Equal(t, "INVALID_DEVICE_UID", decodeError(t, w).Code)
	}
}
