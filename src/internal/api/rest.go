package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ait-main/src/internal/binding"
	"ait-main/src/internal/gateway"
	"ait-main/src/internal/memory"
	"ait-main/src/internal/system"
)

const (
	defaultRecent  = 10
	defaultRelated = 3
)

type feedbackJSON struct {
	Positive uint64  `json:"positive"`
	Total    uint64  `json:"total"`
	Score    float64 `json:"score"`
}

type experienceJSON struct {
	ID        string        `json:"id"`
	Query     string        `json:"query"`
	Response  string        `json:"response"`
	Rank      uint32        `json:"rank"`
	Links     []string      `json:"links,omitempty"`
	Feedback  *feedbackJSON `json:"feedback,omitempty"`
	Embedding []float32     `json:"embedding,omitempty"`
}

type relatedJSON struct {
	ID       string  `json:"id"`
	Distance float32 `json:"distance"`
	Query    string  `json:"query,omitempty"`
	Response string  `json:"response,omitempty"`
	Rank     uint32  `json:"rank"`
}

func toFeedbackJSON(f memory.Feedback) *feedbackJSON {
	return &feedbackJSON{Positive: f.Positive, Total: f.Total, Score: f.Score()}
}

func experienceView(gw *gateway.Gateway, e memory.Experience, withEmbedding bool) experienceJSON {
	out := experienceJSON{
		ID:       e.ID.String(),
		Query:    e.Query,
		Response: e.Response,
		Rank:     e.Rank,
	}
	if links, ok := gw.History.Links(e.ID); ok && len(links) > 0 {
		out.Links = binding.Hex(links)
	}
	if fb, ok := gw.History.Feedback(e.ID); ok && fb.Total > 0 {
		out.Feedback = toFeedbackJSON(fb)
	}
	if withEmbedding {
		out.Embedding = e.Embedding
	}
	return out
}

func (s *Server) handleHealth(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"experiences": gw.History.Len(),
		"dims":        gw.History.Dims(),
	})
}

func (s *Server) handlePush(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	var req struct {
		Query     string    `json:"query"`
		Response  string    `json:"response"`
		Embedding []float64 `json:"embedding"`
		Links     []string  `json:"links"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	links, err := binding.TextIDsHex(req.Links)
	if err != nil {
		writeError(c, err)
		return
	}

	var id memory.TextID
	if len(req.Embedding) == 0 {
		id, err = gw.Agent.RememberText(c.Request.Context(), req.Query, req.Response, links)
	} else {
		var emb memory.Embedding
		emb, err = binding.Floats64(req.Embedding, gw.History.Dims())
		if err == nil {
			id, err = gw.Agent.Remember(c.Request.Context(), req.Query, req.Response, emb, links)
		}
	}
	if err != nil {
		writeError(c, err)
		return
	}

	e, _ := gw.History.Get(id)
	s.broadcast(gin.H{"type": "pushed", "id": id.String(), "rank": e.Rank})
	c.JSON(http.StatusCreated, gin.H{"id": id.String(), "rank": e.Rank})
}

func (s *Server) handleListExperiences(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	num := defaultRecent
	if raw := c.Query("recent"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "recent must be a non-negative integer"})
			return
		}
		num = n
	}

	out := []experienceJSON{}
	for _, e := range gw.History.Recent(num) {
		out = append(out, experienceView(gw, e, false))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetExperience(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	id, err := binding.TextIDHex(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	e, ok := gw.History.Get(id)
	if !ok {
		writeNotFound(c)
		return
	}
	c.JSON(http.StatusOK, experienceView(gw, e, c.Query("embedding") == "true"))
}

func (s *Server) handleDeleteExperience(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	id, err := binding.TextIDHex(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok, err := gw.Agent.Forget(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		writeNotFound(c)
		return
	}
	s.broadcast(gin.H{"type": "removed", "id": id.String()})
	c.Status(http.StatusNoContent)
}

func (s *Server) handleFeedback(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	id, err := binding.TextIDHex(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	var req struct {
		Positive *bool `json:"positive" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fb, ok, err := gw.Agent.Rate(c.Request.Context(), id, *req.Positive)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		writeNotFound(c)
		return
	}
	c.JSON(http.StatusOK, toFeedbackJSON(fb))
}

func (s *Server) handleRelated(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	var req struct {
		Text       string    `json:"text"`
		Embedding  []float64 `json:"embedding"`
		Num        *int      `json:"num"`
		Exhaustive bool      `json:"exhaustive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	num := defaultRelated
	if req.Num != nil {
		num = *req.Num
	}

	var (
		probe memory.Embedding
		err   error
	)
	switch {
	case len(req.Embedding) > 0:
		probe, err = binding.Floats64(req.Embedding, gw.History.Dims())
	case req.Text != "":
		probe, err = gw.Embed(c.Request.Context(), req.Text)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "text or embedding is required"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	var scored []memory.Scored
	if req.Exhaustive {
		scored, err = gw.History.Exhaustive(probe, num)
	} else {
		scored, err = gw.History.RelatedScored(probe, num)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]relatedJSON, 0, len(scored))
	for _, sc := range scored {
		r := relatedJSON{ID: sc.ID.String(), Distance: sc.Distance}
		if e, ok := gw.History.Get(sc.ID); ok {
			r.Query, r.Response, r.Rank = e.Query, e.Response, e.Rank
		}
		out = append(out, r)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleAsk(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	var req struct {
		Query string `json:"query" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ans, err := gw.Agent.Ask(c.Request.Context(), req.Query)
	if err != nil {
		writeError(c, err)
		return
	}
	s.broadcast(gin.H{"type": "pushed", "id": ans.ID.String(), "rank": ans.Rank})
	c.JSON(http.StatusOK, ans)
}

func (s *Server) handleStats(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	st, err := gw.History.Stats()
	if err != nil {
		writeError(c, err)
		return
	}
	out := gin.H{
		"memory": st,
		"system": system.GetInfo(),
		"jobs":   gw.Jobs(),
	}
	if last, ok := gw.History.LastID(); ok {
		out["last_id"] = last.String()
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGraph(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)
	c.Header("Content-Type", "text/vnd.graphviz; charset=utf-8")
	c.Status(http.StatusOK)
	if err := gw.History.WriteDOT(c.Writer); err != nil {
		writeError(c, err)
	}
}
