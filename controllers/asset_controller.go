package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"asset_lending_tool/app"
	"asset_lending_tool/db"
	"asset_lending_tool/lending"
	"asset_lending_tool/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AssetController struct {
	avail   AvailabilityService
	catalog AssetCatalog
}

func NewAssetController(avail AvailabilityService, catalog AssetCatalog) *AssetController {
	return &AssetController{avail: avail, catalog: catalog}
}

// GET /api/assets/available?q=&categoryId=&onlyAvailable=true&page=&size=
func (ac *AssetController) ListAvailable(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	only, _ := strconv.ParseBool(c.DefaultQuery("onlyAvailable", "false"))

	res, err := ac.avail.Availability(c.Request.Context(), db.AvailabilityQuery{
		Q:             c.Query("q"),
		CategoryID:    c.Query("categoryId"),
		OnlyAvailable: only,
		Page:          page,
		Size:          size,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"total": res.Total, "items": res.Items})
}

// GET /api/assets/:id/available
func (ac *AssetController) AvailableCount(c *gin.Context) {
	id := c.Param("id")
	n, err := ac.avail.AvailableCount(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"assetId": id, "available": n})
}

type createAssetReq struct {
	SKU          string  `json:"sku" binding:"required,max=120"`
	Name         string  `json:"name" binding:"required,max=200"`
	CategoryID   *string `json:"categoryId" binding:"omitempty,uuid"`
	IsSerialized bool    `json:"isSerialized"`
	TotalQty     int     `json:"totalQty" binding:"gte=0"`
}

// 管理员录入资产。单件资产的数量由 units 决定，totalQty 忽略
func (ac *AssetController) CreateAsset(c *gin.Context) {
	var in createAssetReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	a := &models.Asset{
		ID:           uuid.NewString(),
		SKU:          strings.TrimSpace(in.SKU),
		Name:         strings.TrimSpace(in.Name),
		CategoryID:   in.CategoryID,
		IsSerialized: in.IsSerialized,
		Status:       models.AssetActive,
	}
	if !in.IsSerialized {
		a.TotalQty = in.TotalQty
	}
	if err := ac.catalog.CreateAsset(c.Request.Context(), a); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

type addUnitReq struct {
	SerialNumber string  `json:"serialNumber" binding:"required,max=120"`
	Note         *string `json:"note" binding:"omitempty,max=255"`
}

// POST /api/assets/:id/units
func (ac *AssetController) AddUnit(c *gin.Context) {
	var in addUnitReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	assetID := c.Param("id")
	if _, err := uuid.Parse(assetID); err != nil {
		writeError(c, lending.ErrAssetNotFound)
		return
	}
	a, err := ac.catalog.FindAssetByID(c.Request.Context(), assetID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !a.IsSerialized {
		c.JSON(http.StatusBadRequest, app.H{"error": "bad_request", "message": "asset is not serialized"})
		return
	}
	u := &models.AssetUnit{
		ID:           uuid.NewString(),
		AssetID:      a.ID,
		SerialNumber: strings.TrimSpace(in.SerialNumber),
		Status:       models.AssetActive,
		Note:         in.Note,
	}
	if err := ac.catalog.AddAssetUnit(c.Request.Context(), u); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

type unitStatusReq struct {
	Status string `json:"status" binding:"required,assetstatus"`
}

// PUT /api/asset-units/:id/status
func (ac *AssetController) SetUnitStatus(c *gin.Context) {
	var in unitStatusReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	unitID := c.Param("id")
	if _, err := uuid.Parse(unitID); err != nil {
		writeError(c, db.ErrNotFound)
		return
	}
	u, err := ac.catalog.SetUnitStatus(c.Request.Context(), unitID, models.AssetStatus(in.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
