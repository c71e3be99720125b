package controllers

import (
	"context"
	"net/http"
	"testing"

	"asset_lending_tool/app"
	"asset_lending_tool/db"
	"asset_lending_tool/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	assets map[string]*models.Asset
	units  map[string]*models.AssetUnit
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{assets: map[string]*models.Asset{}, units: map[string]*models.AssetUnit{}}
}

func (f *fakeCatalog) CreateAsset(_ context.Context, a *models.Asset) error {
	for _, x := range f.assets {
		if x.SKU == a.SKU {
			return db.ErrDuplicate
		}
	}
	f.assets[a.ID] = a
	return nil
}

func (f *fakeCatalog) FindAssetByID(_ context.Context, id string) (*models.Asset, error) {
	a, ok := f.assets[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return a, nil
}

func (f *fakeCatalog) AddAssetUnit(_ context.Context, u *models.AssetUnit) error {
	f.units[u.ID] = u
	return nil
}

func (f *fakeCatalog) SetUnitStatus(_ context.Context, unitID string, st models.AssetStatus) (*models.AssetUnit, error) {
	u, ok := f.units[unitID]
	if !ok {
		return nil, db.ErrNotFound
	}
	u.Status = st
	return u, nil
}

type fakeAvail struct{}

func (fakeAvail) Availability(context.Context, db.AvailabilityQuery) (*db.PagedAvailability, error) {
	return &db.PagedAvailability{}, nil
}

func (fakeAvail) AvailableCount(context.Context, string) (int64, error) { return 3, nil }

func newAssetRouter(t *testing.T, cat *fakeCatalog) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, app.RegisterValidators())

	ac := NewAssetController(fakeAvail{}, cat)
	r := gin.New()
	r.GET("/api/assets/:id/available", ac.AvailableCount)
	r.POST("/api/assets", ac.CreateAsset)
	r.POST("/api/assets/:id/units", ac.AddUnit)
	r.PUT("/api/asset-units/:id/status", ac.SetUnitStatus)
	return r
}

func TestCreateAsset_Bulk(t *testing.T) {
	cat := newFakeCatalog()
	r := newAssetRouter(t, cat)

	w := doJSON(r, http.MethodPost, "/api/assets", app.H{"sku": " CBL-01 ", "name": "USB-C cable", "totalQty": 5})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "CBL-01", body["sku"])
	assert.EqualValues(t, 5, body["totalQty"])
	assert.Equal(t, string(models.AssetActive), body["status"])
	assert.Len(t, cat.assets, 1)

	w = doJSON(r, http.MethodPost, "/api/assets", app.H{"sku": "CBL-01", "name": "again"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateAsset_SerializedIgnoresTotalQty(t *testing.T) {
	r := newAssetRouter(t, newFakeCatalog())

	w := doJSON(r, http.MethodPost, "/api/assets", app.H{"sku": "LAP-1", "name": "Laptop", "isSerialized": true, "totalQty": 7})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["totalQty"])
}

func TestAddUnit_RejectsBulkAsset(t *testing.T) {
	cat := newFakeCatalog()
	bulk := &models.Asset{ID: uuid.NewString(), SKU: "CBL", Name: "cable", TotalQty: 5}
	cat.assets[bulk.ID] = bulk
	r := newAssetRouter(t, cat)

	w := doJSON(r, http.MethodPost, "/api/assets/"+bulk.ID+"/units", app.H{"serialNumber": "SN-1"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "asset is not serialized", decode(t, w)["message"])
	assert.Empty(t, cat.units)
}

func TestAddUnit_Serialized(t *testing.T) {
	cat := newFakeCatalog()
	lap := &models.Asset{ID: uuid.NewString(), SKU: "LAP", Name: "Laptop", IsSerialized: true}
	cat.assets[lap.ID] = lap
	r := newAssetRouter(t, cat)

	w := doJSON(r, http.MethodPost, "/api/assets/"+lap.ID+"/units", app.H{"serialNumber": " SN-1 "})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "SN-1", body["serialNumber"])
	assert.Equal(t, lap.ID, body["assetId"])
	assert.Len(t, cat.units, 1)

	w = doJSON(r, http.MethodPost, "/api/assets/not-a-uuid/units", app.H{"serialNumber": "SN-2"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "asset_not_found", decode(t, w)["error"])
}

func TestSetUnitStatus(t *testing.T) {
	cat := newFakeCatalog()
	unit := &models.AssetUnit{ID: uuid.NewString(), AssetID: uuid.NewString(), SerialNumber: "SN-1", Status: models.AssetActive}
	cat.units[unit.ID] = unit
	r := newAssetRouter(t, cat)

	w := doJSON(r, http.MethodPut, "/api/asset-units/"+unit.ID+"/status", app.H{"status": "BROKEN"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.AssetBroken, unit.Status)

	w = doJSON(r, http.MethodPut, "/api/asset-units/"+unit.ID+"/status", app.H{"status": "MELTED"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.AssetBroken, unit.Status)

	w = doJSON(r, http.MethodPut, "/api/asset-units/"+uuid.NewString()+"/status", app.H{"status": "LOST"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
