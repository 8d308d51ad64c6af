package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfrange/internal/filetype"
	"github.com/local/pdfrange/internal/orchestrator"
	"github.com/local/pdfrange/internal/preview"
	"github.com/local/pdfrange/internal/source"
	"github.com/local/pdfrange/internal/store"
)

// sessionView is the JSON shape of a session.
type sessionView struct {
	ID           string `json:"id"`
	State        string `json:"state"`
	File         string `json:"file,omitempty"`
	Pages        int    `json:"pages,omitempty"`
	Size         int    `json:"size,omitempty"`
	Fingerprint  string `json:"fingerprint,omitempty"`
	DefaultStart int    `json:"default_start,omitempty"`
	DefaultEnd   int    `json:"default_end,omitempty"`
	Message      string `json:"message,omitempty"`
}

func viewOf(sess *orchestrator.Session) sessionView {
	v := sessionView{ID: sess.ID(), State: sess.State().String()}
	if src := sess.Source(); src != nil {
		v.File = src.Name()
		v.Pages = src.PageCount()
		v.Size = src.Size()
		v.Fingerprint = src.Fingerprint()
	}
	if r, ok := sess.DefaultRange(); ok {
		v.DefaultStart, v.DefaultEnd = r.Start, r.End
	}
	return v
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "pdfrange"})
}

func (s *Server) handleReady(c *gin.Context) {
	if s.checker == nil {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	sum := s.checker.Summary(c.Request.Context())
	status := http.StatusOK
	if !sum.Ready() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"ready": sum.Ready(), "checks": sum})
}

func (s *Server) handleCreate(c *gin.Context) {
	sess, err := s.store.Create(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("create session failed")
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(sess))
}

// withSession resolves :id before calling h.
func (s *Server) withSession(h func(*gin.Context, *orchestrator.Session)) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := s.store.Get(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		if err != nil {
			log.Error().Err(err).Str("session_id", c.Param("id")).Msg("session lookup failed")
			respondError(c, http.StatusInternalServerError, err)
			return
		}
		h(c, sess)
	}
}

func (s *Server) handleGet(c *gin.Context, sess *orchestrator.Session) {
	c.JSON(http.StatusOK, viewOf(sess))
}

func (s *Server) handleDelete(c *gin.Context) {
	err := s.store.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type loadRequest struct {
	Ref string `json:"ref"`
}

// handleLoad accepts either a multipart "file" upload or a JSON body
// {"ref": "..."} naming a remote document.
func (s *Server) handleLoad(c *gin.Context, sess *orchestrator.Session) {
	var (
		name string
		raw  []byte
	)
	if c.ContentType() == gin.MIMEJSON {
		var req loadRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Ref) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "A document reference is required"})
			return
		}
		if s.fetcher == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Loading by reference is disabled"})
			return
		}
		doc, err := s.fetcher.Fetch(c.Request.Context(), req.Ref)
		if err != nil {
			s.respondFetchError(c, sess, req.Ref, err)
			return
		}
		name, raw = doc.Name, doc.Data
	} else {
		if s.cfg.MaxUploadBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)
		}
		fh, err := c.FormFile("file")
		if err != nil {
			if isTooLarge(err) {
				s.abandon(c, sess, err)
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": s.tooLargeMessage()})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			s.abandon(c, sess, err)
			respondError(c, http.StatusInternalServerError, err)
			return
		}
		raw, err = io.ReadAll(f)
		f.Close()
		if err != nil {
			s.abandon(c, sess, err)
			respondError(c, http.StatusInternalServerError, err)
			return
		}
		name = fh.Filename
		if declared := fh.Header.Get("Content-Type"); !filetype.DeclaredPDF(declared) {
			log.Debug().Str("session_id", sess.ID()).Str("declared", declared).Msg("upload not declared as pdf; sniffing content")
		}
	}

	src, err := sess.Load(c.Request.Context(), name, raw)
	if !errors.Is(err, orchestrator.ErrBusy) {
		if saveErr := s.store.Save(c.Request.Context(), sess); saveErr != nil {
			log.Error().Err(saveErr).Str("session_id", sess.ID()).Msg("session save failed")
			if err == nil {
				respondError(c, http.StatusInternalServerError, saveErr)
				return
			}
		}
	}
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}

	v := viewOf(sess)
	v.Message = src.Message()
	c.JSON(http.StatusOK, v)
}

func (s *Server) respondFetchError(c *gin.Context, sess *orchestrator.Session, ref string, err error) {
	log.Warn().Err(err).Str("session_id", sess.ID()).Str("ref", ref).Msg("source fetch failed")
	s.abandon(c, sess, err)
	switch {
	case errors.Is(err, source.ErrUnsupportedRef):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported document reference", "detail": err.Error()})
	case errors.Is(err, source.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": s.tooLargeMessage()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not fetch the referenced document", "detail": err.Error()})
	}
}

// abandon empties the session after a load that failed before Load ran,
// so a failed load never leaves the previous document in place.
func (s *Server) abandon(c *gin.Context, sess *orchestrator.Session, cause error) {
	if err := sess.Abandon(c.Request.Context(), cause); err != nil {
		return
	}
	if err := s.store.Save(c.Request.Context(), sess); err != nil {
		log.Error().Err(err).Str("session_id", sess.ID()).Msg("session save failed")
	}
}

func (s *Server) tooLargeMessage() string {
	return fmt.Sprintf("File is too large (limit %d MB)", s.cfg.MaxUploadBytes>>20)
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

// rangeField accepts any JSON scalar so {"start":"3"}, {"start":3} and
// {"start":true} all reach ParseRange, which decides what is a page number.
// Objects and arrays are rejected.
type rangeField string

func (f *rangeField) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = rangeField(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = rangeField(n.String())
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if _, ok := v.(bool); !ok {
		return fmt.Errorf("page number must be a scalar, got %s", b)
	}
	*f = rangeField(strings.TrimSpace(string(b)))
	return nil
}

type extractRequest struct {
	Start rangeField `json:"start"`
	End   rangeField `json:"end"`
}

func (s *Server) handleExtract(c *gin.Context, sess *orchestrator.Session) {
	var start, end string
	if c.ContentType() == gin.MIMEJSON {
		var req extractRequest
		if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		start, end = string(req.Start), string(req.End)
	} else {
		start, end = c.PostForm("start"), c.PostForm("end")
	}

	ext, err := sess.Extract(c.Request.Context(), start, end)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+ext.Filename)
	c.Header("X-Extract-Message", ext.Message())
	c.Header("X-Extract-Pages", strconv.Itoa(ext.Pages))
	c.Data(http.StatusOK, "application/pdf", ext.Data)
}

func (s *Server) handlePreview(c *gin.Context, sess *orchestrator.Session) {
	src := sess.Source()
	if src == nil {
		respondError(c, http.StatusConflict, orchestrator.ErrNoSource)
		return
	}
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil {
		respondError(c, http.StatusBadRequest, &orchestrator.MissingInputError{Fields: []string{"page"}})
		return
	}
	if page < 1 || page > src.PageCount() {
		respondError(c, http.StatusBadRequest, &orchestrator.OutOfRangeError{
			Start: page, End: page, PageCount: src.PageCount(), BelowOne: page < 1,
		})
		return
	}

	img, err := preview.RenderPage(src.Bytes(), page, s.cfg.Preview)
	if err != nil {
		log.Error().Err(err).Str("session_id", sess.ID()).Int("page", page).Msg("preview render failed")
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/jpeg", img.JPEG)
}

// statusFor maps orchestrator errors to HTTP status codes.
func statusFor(err error) int {
	var (
		loadErr    *orchestrator.LoadError
		missingErr *orchestrator.MissingInputError
		rangeErr   *orchestrator.OutOfRangeError
		orderErr   *orchestrator.OrderError
	)
	switch {
	case errors.As(err, &loadErr):
		if loadErr.Reason == orchestrator.ReasonNotPDF {
			return http.StatusUnsupportedMediaType
		}
		return http.StatusBadRequest
	case errors.As(err, &missingErr), errors.As(err, &rangeErr), errors.As(err, &orderErr):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrBusy), errors.Is(err, orchestrator.ErrNoSource):
		return http.StatusConflict
	default:
		// ExtractionError and anything unexpected.
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": orchestrator.UserMessage(err), "detail": err.Error()})
}
