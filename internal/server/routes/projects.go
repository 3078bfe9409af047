package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"callgrid/internal/models"
)

// ProjectRoutes carries the tenant administration surface: companies,
// projects, memberships, workbooks, and sheet lifecycle. The cell
// engine itself lives behind the sheet routes.
type ProjectRoutes struct {
	server ServerInterface
}

func NewProjectRoutes(server ServerInterface) *ProjectRoutes {
	return &ProjectRoutes{server: server}
}

func (pr *ProjectRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(pr.server)

	admin := r.Group("/")
	admin.Use(middleware.AuthMiddleware(), middleware.RequireAdmin())
	{
		admin.POST("/companies", pr.createCompanyHandler)
		admin.GET("/companies", pr.listCompaniesHandler)
		admin.POST("/projects", pr.createProjectHandler)
		admin.DELETE("/projects/:projectID", pr.deleteProjectHandler)
		admin.POST("/projects/:projectID/members", pr.addMemberHandler)
		admin.DELETE("/projects/:projectID/members/:userID", pr.removeMemberHandler)
	}

	authed := r.Group("/")
	authed.Use(middleware.AuthMiddleware())
	{
		authed.GET("/projects/:projectID", pr.getProjectHandler)
		authed.PUT("/projects/:projectID", pr.updateProjectHandler)
		authed.GET("/projects/:projectID/workbooks", pr.listWorkbooksHandler)
		authed.POST("/projects/:projectID/workbooks", pr.createWorkbookHandler)
		authed.PUT("/workbooks/:workbookID", pr.updateWorkbookHandler)
		authed.DELETE("/workbooks/:workbookID", pr.deleteWorkbookHandler)
		authed.POST("/workbooks/:workbookID/agents", pr.assignAgentHandler)
		authed.DELETE("/workbooks/:workbookID/agents/:agentID", pr.unassignAgentHandler)
		authed.GET("/workbooks/:workbookID/sheets", pr.listSheetsHandler)
		authed.POST("/workbooks/:workbookID/sheets", pr.createSheetHandler)
		authed.PUT("/sheet/:sheetID", pr.updateSheetHandler)
		authed.DELETE("/sheet/:sheetID", pr.deleteSheetHandler)
	}
}

// canManageProject reports whether the user is an admin or supervises
// the project.
func (pr *ProjectRoutes) canManageProject(user *models.User, projectID uuid.UUID) bool {
	if user.Role == models.RoleAdmin {
		return true
	}
	if user.Role != models.RoleSupervisor {
		return false
	}
	ok, err := models.Exists[models.ProjectMembership](pr.server.GetDB().Models().DB,
		"project_id = ? AND user_id = ? AND role = ?",
		projectID, user.ID, models.ProjectRoleSupervisor)
	return err == nil && ok
}

func (pr *ProjectRoutes) createCompanyHandler(c *gin.Context) {
	var req struct {
		Name   string `json:"name" binding:"required,min=1,max=100"`
		Domain string `json:"domain" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	company := &models.Company{Name: req.Name, Domain: req.Domain}
	if err := pr.server.GetDB().Models().Companies.Create(company); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create company"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"company": company})
}

func (pr *ProjectRoutes) listCompaniesHandler(c *gin.Context) {
	companies, err := pr.server.GetDB().Models().Companies.All()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch companies"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"companies": companies, "total": len(companies)})
}

func (pr *ProjectRoutes) createProjectHandler(c *gin.Context) {
	var req struct {
		CompanyID   uuid.UUID               `json:"company_id" binding:"required"`
		Name        string                  `json:"name" binding:"required,min=1,max=100"`
		Description string                  `json:"description" binding:"max=500"`
		Type        models.ProjectType      `json:"project_type"`
		Direction   models.ProjectDirection `json:"project_direction"`
		Campaign    models.CampaignKind     `json:"campaign_kind"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := pr.server.GetDB().Models()
	if _, err := db.Companies.Get(req.CompanyID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	project := &models.Project{
		CompanyID:   req.CompanyID,
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Direction:   req.Direction,
		Campaign:    req.Campaign,
	}
	if project.Type == "" {
		project.Type = models.ProjectOutbound
	}
	if project.Direction == "" {
		project.Direction = models.DirectionCall
	}
	if project.Campaign == "" {
		project.Campaign = models.CampaignTelesales
	}

	if err := db.Projects.Create(project); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create project"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"project": project})
}

func (pr *ProjectRoutes) getProjectHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	projectID, err := uuid.Parse(c.Param("projectID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	db := pr.server.GetDB().Models()
	project, err := db.Projects.Get(projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	// Members see the project; everyone else gets not-found.
	if !pr.canManageProject(user, projectID) {
		isMember, err := models.Exists[models.ProjectMembership](db.DB,
			"project_id = ? AND user_id = ?", projectID, user.ID)
		if err != nil || !isMember {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
	}

	supervisors, _ := project.GetMembers(db.DB, models.ProjectRoleSupervisor)
	agents, _ := project.GetMembers(db.DB, models.ProjectRoleAgent)

	c.JSON(http.StatusOK, gin.H{
		"project":     project,
		"supervisors": supervisors,
		"agents":      agents,
	})
}

func (pr *ProjectRoutes) updateProjectHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	projectID, err := uuid.Parse(c.Param("projectID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	if !pr.canManageProject(user, projectID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	var req struct {
		Name        string `json:"name" binding:"required,min=1,max=100"`
		Description string `json:"description" binding:"max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := pr.server.GetDB().Models()
	project, err := db.Projects.Get(projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	project.Name = req.Name
	project.Description = req.Description
	if err := db.Projects.Update(project); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update project"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"project": project})
}

func (pr *ProjectRoutes) deleteProjectHandler(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	if err := pr.server.GetDB().Models().Projects.Delete(projectID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete project"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Project deleted successfully"})
}

func (pr *ProjectRoutes) addMemberHandler(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	var req struct {
		UserID int                `json:"user_id" binding:"required"`
		Role   models.ProjectRole `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role != models.ProjectRoleSupervisor && req.Role != models.ProjectRoleAgent {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role. Must be supervisor or agent"})
		return
	}

	db := pr.server.GetDB().Models()
	project, err := db.Projects.Get(projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	if _, err := db.Users.Get(req.UserID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if err := project.AddMember(db.DB, req.UserID, req.Role); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add member"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member added successfully"})
}

func (pr *ProjectRoutes) removeMemberHandler(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("projectID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	userID, err := strconv.Atoi(c.Param("userID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	db := pr.server.GetDB().Models()
	project, err := db.Projects.Get(projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	if err := project.RemoveMember(db.DB, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove member"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member removed successfully"})
}

func (pr *ProjectRoutes) listWorkbooksHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	projectID, err := uuid.Parse(c.Param("projectID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	db := pr.server.GetDB().Models()
	workbooks, err := db.Workbooks.ForProject(projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch workbooks"})
		return
	}

	// Agents and partners only see workbooks they are assigned to.
	if user.Role == models.RoleAgent || user.Role == models.RolePartner {
		assigned := workbooks[:0]
		for _, w := range workbooks {
			ok, err := w.HasAgent(db.DB, user.ID)
			if err == nil && ok {
				assigned = append(assigned, w)
			}
		}
		workbooks = assigned
	} else if !pr.canManageProject(user, projectID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"workbooks": workbooks, "total": len(workbooks)})
}

func (pr *ProjectRoutes) createWorkbookHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	projectID, err := uuid.Parse(c.Param("projectID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	if !pr.canManageProject(user, projectID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	var req struct {
		Name        string `json:"name" binding:"required,min=1,max=100"`
		Description string `json:"description" binding:"max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	workbook := &models.Workbook{ProjectID: projectID, Name: req.Name, Description: req.Description}
	if err := pr.server.GetDB().Models().Workbooks.Create(workbook); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create workbook"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"workbook": workbook})
}

// workbookForManager loads a workbook the user may manage, or answers
// not-found.
func (pr *ProjectRoutes) workbookForManager(c *gin.Context, user *models.User) (*models.Workbook, bool) {
	workbookID, err := uuid.Parse(c.Param("workbookID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return nil, false
	}

	workbook, err := pr.server.GetDB().Models().Workbooks.Get(workbookID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return nil, false
	}
	if !pr.canManageProject(user, workbook.ProjectID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return nil, false
	}
	return workbook, true
}

func (pr *ProjectRoutes) updateWorkbookHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	workbook, ok := pr.workbookForManager(c, user)
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name" binding:"required,min=1,max=100"`
		Description string `json:"description" binding:"max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	workbook.Name = req.Name
	workbook.Description = req.Description
	if err := pr.server.GetDB().Models().Workbooks.Update(workbook); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update workbook"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"workbook": workbook})
}

func (pr *ProjectRoutes) deleteWorkbookHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	workbook, ok := pr.workbookForManager(c, user)
	if !ok {
		return
	}

	if err := pr.server.GetDB().Models().Workbooks.Delete(workbook.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete workbook"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Workbook deleted successfully"})
}

func (pr *ProjectRoutes) assignAgentHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	workbook, ok := pr.workbookForManager(c, user)
	if !ok {
		return
	}

	var req struct {
		AgentID int `json:"agent_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	db := pr.server.GetDB().Models()
	if _, err := db.Users.Get(req.AgentID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if err := workbook.AssignAgent(db.DB, req.AgentID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assign agent"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Agent assigned successfully"})
}

func (pr *ProjectRoutes) unassignAgentHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	workbook, ok := pr.workbookForManager(c, user)
	if !ok {
		return
	}

	agentID, err := strconv.Atoi(c.Param("agentID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid agent ID"})
		return
	}

	if err := workbook.UnassignAgent(pr.server.GetDB().Models().DB, agentID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unassign agent"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Agent unassigned successfully"})
}

func (pr *ProjectRoutes) listSheetsHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	workbookID, err := uuid.Parse(c.Param("workbookID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	db := pr.server.GetDB().Models()
	workbook, err := db.Workbooks.Get(workbookID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	if user.Role == models.RoleAgent || user.Role == models.RolePartner {
		assigned, err := workbook.HasAgent(db.DB, user.ID)
		if err != nil || !assigned {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
	} else if !pr.canManageProject(user, workbook.ProjectID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	sheets, err := db.Sheets.ForWorkbook(workbookID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sheets"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sheets": sheets, "total": len(sheets)})
}

func (pr *ProjectRoutes) createSheetHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	workbook, ok := pr.workbookForManager(c, user)
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name" binding:"required,min=1,max=100"`
		Description string `json:"description" binding:"max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sheet := &models.Sheet{
		WorkbookID:  workbook.ID,
		ProjectID:   workbook.ProjectID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := pr.server.GetDB().Models().Sheets.Create(sheet); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create sheet"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"sheet": sheet})
}

func (pr *ProjectRoutes) updateSheetHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	id, err := uuid.Parse(c.Param("sheetID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	db := pr.server.GetDB().Models()
	sheet, err := db.Sheets.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	if !pr.canManageProject(user, sheet.ProjectID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	var req struct {
		Name        string `json:"name" binding:"required,min=1,max=100"`
		Description string `json:"description" binding:"max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sheet.Name = req.Name
	sheet.Description = req.Description
	if err := db.Sheets.Update(sheet); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update sheet"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sheet": sheet})
}

func (pr *ProjectRoutes) deleteSheetHandler(c *gin.Context) {
	user := c.MustGet("user").(*models.User)
	id, err := uuid.Parse(c.Param("sheetID"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	db := pr.server.GetDB().Models()
	sheet, err := db.Sheets.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	if !pr.canManageProject(user, sheet.ProjectID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	if err := db.Sheets.Delete(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete sheet"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Sheet deleted successfully"})
}
