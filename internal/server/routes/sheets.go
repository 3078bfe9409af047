package routes

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"callgrid/internal/database"
	"callgrid/internal/gateway"
	"callgrid/internal/models"
)

type SheetRoutes struct {
	server ServerInterface
}

func NewSheetRoutes(server ServerInterface) *SheetRoutes {
	return &SheetRoutes{server: server}
}

func (sr *SheetRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(sr.server)

	sheet := r.Group("/sheet/:sheetID")
	sheet.Use(middleware.AuthMiddleware())
	{
		sheet.GET("", sr.getSheetHandler)
		sheet.GET("/rows", sr.listRowsHandler)
		sheet.POST("/rows", sr.createRowHandler)
		sheet.PATCH("/rows/:rowNumber", sr.patchRowHandler)
		sheet.DELETE("/rows/:rowNumber", sr.deleteRowHandler)
		sheet.POST("/rows/import", sr.importRowsHandler)
		sheet.POST("/column/:columnID", sr.upsertColumnHandler)
		sheet.PATCH("/column/:columnID", sr.patchColumnHandler)
		sheet.DELETE("/column/:columnID", sr.deleteColumnHandler)
		sheet.PUT("/columns/reorder", sr.reorderColumnsHandler)
		sheet.GET("/permissions", sr.getPermissionsHandler)
		sheet.PUT("/permissions", sr.putPermissionsHandler)
		sheet.GET("/oplog", sr.getOpLogHandler)
	}
}

func sheetID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("sheetID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return uuid.Nil, false
	}
	return id, true
}

func rowNumber(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("rowNumber"))
	if err != nil || n < 1 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return 0, false
	}
	return n, true
}

// getSheetHandler returns the sheet with its columns as the caller
// may see them.
func (sr *SheetRoutes) getSheetHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	id, ok := sheetID(c)
	if !ok {
		return
	}

	// Negative limit: schema only, no row page.
	page, err := sr.server.GetGateway().Get(user, id, gateway.Query{Page: 1, Limit: -1})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sheet": gin.H{
			"id":      page.SheetID,
			"name":    page.Name,
			"columns": page.Columns,
		},
	})
}

// listRowsHandler returns one filtered page of rows.
func (sr *SheetRoutes) listRowsHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	id, ok := sheetID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))

	result, err := sr.server.GetGateway().Get(user, id, gateway.Query{Page: page, Limit: limit, Skip: skip})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result.Rows, "columns": result.Columns, "page": result.Page, "limit": result.Limit})
}

func (sr *SheetRoutes) createRowHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	id, ok := sheetID(c)
	if !ok {
		return
	}

	var data models.JSONB
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := sr.server.GetGateway().Apply(c.Request.Context(), user, id, gateway.CreateRowOp{Data: data})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"row": result})
}

func (sr *SheetRoutes) patchRowHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	id, ok := sheetID(c)
	if !ok {
		return
	}
	num, ok := rowNumber(c)
	if !ok {
		return
	}

	var body models.JSONB
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// A {key, value} body is the single-cell patch convention. The
	// gateway disambiguates against the sheet's schema, so columns
	// literally keyed key/value keep partial-map semantics.
	result, err := sr.server.GetGateway().Apply(c.Request.Context(), user, id, gateway.PatchRowOp{RowNumber: num, Data: body})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"row": result})
}

func (sr *SheetRoutes) deleteRowHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	id, ok := sheetID(c)
	if !ok {
		return
	}
	num, ok := rowNumber(c)
	if !ok {
		return
	}

	if _, err := sr.server.GetGateway().Apply(c.Request.Context(), user, id, gateway.DeleteRowOp{RowNumber: num}); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Row deleted successfully"})
}

func (sr *SheetRoutes) importRowsHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	id, ok := sheetID(c)
	if !ok {
		return
	}

	if err := c.Request.ParseMultipartForm(32 << 20); err != nil { // 32 MB max
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse form data"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Import file is required"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}
	if len(content) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is empty"})
		return
	}

	result, err := sr.server.GetGateway().Apply(c.Request.Context(), user, id, gateway.ImportRowsOp{
		Filename: header.Filename,
		Content:  content,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

type columnRequest struct {
	Name           string               `json:"name"`
	DataKey        string               `json:"data_key"`
	Type           models.ColumnType    `json:"type"`
	VisibleToUser  *bool                `json:"visible_to_user"`
	EditableByUser *bool                `json:"editable_by_user"`
	IsRequired     bool                 `json:"is_required"`
	Order          int                  `json:"order"`
	Options        models.SelectOptions `json:"options"`
	PhoneNumbers   models.StringList    `json:"phone_numbers"`
}

// upsertColumnHandler creates a column when the path id is the
// literal "new", otherwise fully updates the addressed column. The
// sentinel is the deployed convention; both shapes go through the
// same gateway ops.
func (sr *SheetRoutes) upsertColumnHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	id, ok := sheetID(c)
	if !ok {
		return
	}

	var req columnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	columnParam := c.Param("columnID")
	if columnParam == "new" {
		if req.Name == "" || req.DataKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Column name and data_key are required"})
			return
		}

		def := &models.Column{
			Name:         req.Name,
			DataKey:      req.DataKey,
			Type:         req.Type,
			IsRequired:   req.IsRequired,
			DisplayOrder: req.Order,
			Options:      req.Options,
			PhoneNumbers: req.PhoneNumbers,
		}
		def.VisibleToUser = req.VisibleToUser == nil || *req.VisibleToUser
		def.EditableByUser = req.EditableByUser == nil || *req.EditableByUser
		if def.Type == "" {
			def.Type = models.ColumnText
		}

		result, err := sr.server.GetGateway().Apply(c.Request.Context(), user, id, gateway.CreateColumnOp{Def: def})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"column": result})
		return
	}

	columnID, err := uuid.Parse(columnParam)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	patch := database.ColumnPatch{
		IsRequired:     &req.IsRequired,
		DisplayOrder:   &req.Order,
		VisibleToUser:  req.VisibleToUser,
		EditableByUser: req.EditableByUser,
	}
	if req.Name != "" {
		patch.Name = &req.Name
	}
	if req.DataKey != "" {
		patch.DataKey = &req.DataKey
	}
	if req.Type != "" {
		patch.Type = &req.Type
	}
	if req.Options != nil {
		patch.Options = &req.Options
	}
	if req.PhoneNumbers != nil {
		patch.PhoneNumbers = &req.PhoneNumbers
	}

	result, err := sr.server.GetGateway().Apply(c.Request.Context(), user, id, gateway.UpdateColumnOp{ColumnID: columnID, Patch: patch})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"column": result})
}

// patchColumnHandler partially updates a column.
func (sr *SheetRoutes) patchColumnHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	id, ok := sheetID(c)
	if !ok {
		return
	}

	columnID, err := uuid.Parse(c.Param("columnID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	var patch database.ColumnPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := sr.server.GetGateway().Apply(c.Request.Context(), user, id, gateway.UpdateColumnOp{ColumnID: columnID, Patch: patch})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"column": result})
}

func (sr *SheetRoutes) deleteColumnHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	id, ok := sheetID(c)
	if !ok {
		return
	}

	columnID, err := uuid.Parse(c.Param("columnID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	if _, err := sr.server.GetGateway().Apply(c.Request.Context(), user, id, gateway.DeleteColumnOp{ColumnID: columnID}); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Column deleted successfully"})
}

func (sr *SheetRoutes) reorderColumnsHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	id, ok := sheetID(c)
	if !ok {
		return
	}

	var req struct {
		OrderedIDs []uuid.UUID `json:"ordered_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := sr.server.GetGateway().Apply(c.Request.Context(), user, id, gateway.ReorderColumnsOp{OrderedIDs: req.OrderedIDs}); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Columns reordered successfully"})
}

func (sr *SheetRoutes) getPermissionsHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	id, ok := sheetID(c)
	if !ok {
		return
	}

	perms, err := sr.server.GetGateway().SheetPermissions(user, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"permissions": perms})
}

// putPermissionsHandler replaces one agent's row ranges on the sheet.
func (sr *SheetRoutes) putPermissionsHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	id, ok := sheetID(c)
	if !ok {
		return
	}

	var req struct {
		AgentID int `json:"agent_id" binding:"required"`
		Ranges  []struct {
			StartRow int `json:"start_row" binding:"required"`
			EndRow   int `json:"end_row" binding:"required"`
		} `json:"ranges"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ranges := make([]models.AgentRowPermission, 0, len(req.Ranges))
	for _, r := range req.Ranges {
		if r.StartRow < 1 || r.EndRow < r.StartRow {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid row range"})
			return
		}
		ranges = append(ranges, models.AgentRowPermission{StartRow: r.StartRow, EndRow: r.EndRow})
	}

	if err := sr.server.GetGateway().ReplaceAgentRanges(user, id, req.AgentID, ranges); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Permissions updated successfully"})
}

func (sr *SheetRoutes) getOpLogHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	id, ok := sheetID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	entries, err := sr.server.GetGateway().OperationLog(user, id, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "total": len(entries)})
}
