package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/ledgerbridge/internal/account/domain"
	"github.com/smallbiznis/ledgerbridge/internal/pipeline/runlog"
)

const maxRunsPerPage = 500

type accountRequest struct {
	Name             string           `json:"name"`
	HoldedAPIKey     string           `json:"holded_api_key"`
	CegidCompanyCode string           `json:"cegid_company_code"`
	Mode             string           `json:"mode"`
	DocTypes         []string         `json:"doc_types"`
	DocumentCounter  int64            `json:"document_counter"`
	Cursors          map[string]int64 `json:"cursors"`
}

func (r accountRequest) toDomain() accountdomain.CreateAccountRequest {
	docTypes := make([]string, 0, len(r.DocTypes))
	for _, dt := range r.DocTypes {
		docTypes = append(docTypes, strings.ToLower(strings.TrimSpace(dt)))
	}
	return accountdomain.CreateAccountRequest{
		Name:             strings.TrimSpace(r.Name),
		HoldedAPIKey:     strings.TrimSpace(r.HoldedAPIKey),
		CegidCompanyCode: strings.TrimSpace(r.CegidCompanyCode),
		Mode:             accountdomain.Mode(strings.TrimSpace(r.Mode)),
		DocTypes:         docTypes,
		DocumentCounter:  r.DocumentCounter,
		Cursors:          r.Cursors,
	}
}

func (s *Server) ListAccounts(c *gin.Context) {
	accounts, err := s.accounts.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": accounts})
}

func (s *Server) CreateAccount(c *gin.Context) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	account, err := s.accounts.Create(c.Request.Context(), req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": account})
}

func (s *Server) GetAccount(c *gin.Context) {
	account, err := s.accounts.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": account})
}

func (s *Server) UpdateAccount(c *gin.Context) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	account, err := s.accounts.Update(c.Request.Context(), accountdomain.UpdateAccountRequest{
		ID:                   strings.TrimSpace(c.Param("id")),
		CreateAccountRequest: req.toDomain(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": account})
}

func (s *Server) DeleteAccount(c *gin.Context) {
	if err := s.accounts.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) DuplicateAccount(c *gin.Context) {
	account, err := s.accounts.Duplicate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": account})
}

func (s *Server) GetAccountCursors(c *gin.Context) {
	cursors, err := s.accounts.Cursors(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cursors})
}

func (s *Server) ListAccountRuns(c *gin.Context) {
	if s.runs == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	var query struct {
		DocType string `form:"doc_type"`
		State   string `form:"state"`
		Since   string `form:"since"`
		Until   string `form:"until"`
		Limit   int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	since, err := parseOptionalTime(query.Since)
	if err != nil {
		AbortWithError(c, newValidationError("since", "invalid_since", "must be RFC3339"))
		return
	}
	until, err := parseOptionalTime(query.Until)
	if err != nil {
		AbortWithError(c, newValidationError("until", "invalid_until", "must be RFC3339"))
		return
	}
	limit := query.Limit
	if limit <= 0 || limit > maxRunsPerPage {
		limit = maxRunsPerPage
	}

	ctx := c.Request.Context()
	account, err := s.accounts.Get(ctx, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	runs, err := s.runs.List(ctx, account.ID, runlog.ListFilter{
		DocType: strings.TrimSpace(query.DocType),
		State:   strings.TrimSpace(query.State),
		Since:   since,
		Until:   until,
		Limit:   limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	counts, err := s.runs.CountByState(ctx, account.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": runs, "counts": counts})
}

func parseOptionalTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}
