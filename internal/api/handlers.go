// Package api is the HTTP surface for submitting renders and polling them.
package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"videothingy/assembly-engine/internal/adapters/images"
	"videothingy/assembly-engine/internal/assembler"
	"videothingy/assembly-engine/internal/config"
	"videothingy/assembly-engine/internal/effects"
	"videothingy/assembly-engine/internal/jobs"
	"videothingy/assembly-engine/internal/manifest"
	"videothingy/assembly-engine/internal/models"
	"videothingy/assembly-engine/internal/worker"
)

// SceneAsset is an image supplied with the request.
type SceneAsset struct {
	SceneID      string `json:"scene_id" validate:"required"`
	ImagePath    string `json:"image_path" validate:"required"`
	CameraEffect string `json:"camera_effect,omitempty"`
}

// CreateRenderRequest submits a project. Scenes without a supplied asset
// fall back to the server's image provider.
type CreateRenderRequest struct {
	ProjectID  string              `json:"project_id,omitempty" validate:"omitempty,max=64,ne=.,ne=..,excludesall=/\\"`
	Units      []models.SpeechUnit `json:"units" validate:"required,min=1,dive"`
	Scenes     []SceneAsset        `json:"scenes,omitempty" validate:"omitempty,dive"`
	Preview    bool                `json:"preview"`
	OutputPath string              `json:"output_path,omitempty"`
	// Overlays are timed-text documents burned in after the captions.
	Overlays []string `json:"overlays,omitempty" validate:"omitempty,dive,required"`
}

// RegenerateRequest replaces one speech unit of a finished project.
type RegenerateRequest struct {
	Index *int              `json:"index" validate:"required,gte=0"`
	Unit  models.SpeechUnit `json:"unit"`
}

// ApplicationHandler holds shared dependencies for handlers.
type ApplicationHandler struct {
	Queue  *jobs.Queue
	Store  *jobs.Store
	Images images.Chain
	Logger *logrus.Logger
}

// NewApplicationHandler creates the handler set. fallback serves scenes the
// request does not supply.
func NewApplicationHandler(queue *jobs.Queue, fallback images.Chain, logger *logrus.Logger) *ApplicationHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ApplicationHandler{
		Queue:  queue,
		Store:  queue.Store,
		Images: fallback,
		Logger: logger,
	}
}

// Health reports liveness and the queue depth when known.
func (h *ApplicationHandler) Health(c *fiber.Ctx) error {
	body := fiber.Map{"status": "ok", "message": "assembly engine is healthy"}
	if d, ok := h.Queue.Dispatcher.(*worker.Dispatcher); ok {
		body["queue_depth"] = d.QueueDepth()
	}
	return c.Status(fiber.StatusOK).JSON(body)
}

// CreateRender validates and queues a render job.
func (h *ApplicationHandler) CreateRender(c *fiber.Ctx) error {
	req := new(CreateRenderRequest)
	if err := c.BodyParser(req); err != nil {
		return RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("cannot parse render JSON: %v", err))
	}
	if err := config.Struct(req); err != nil {
		return RespondWithValidationErrors(c, config.FormatValidationErrors(err))
	}
	if msgs := checkCameraTags(req.Scenes); len(msgs) > 0 {
		return RespondWithValidationErrors(c, msgs)
	}

	areq := assembler.Request{
		ProjectID:  req.ProjectID,
		Units:      req.Units,
		Preview:    req.Preview,
		OutputPath: req.OutputPath,
		Overlays:   req.Overlays,
	}
	if len(req.Scenes) > 0 {
		supplied := images.Static{}
		for _, s := range req.Scenes {
			supplied[s.SceneID] = models.VisualAsset{SceneID: s.SceneID, ImagePath: s.ImagePath, CameraEffect: s.CameraEffect}
		}
		areq.Images = append(images.Chain{supplied}, h.Images...)
	}

	st, err := h.Queue.SubmitRender(c.UserContext(), areq)
	if err != nil {
		return h.respondJobError(c, err)
	}
	h.Logger.WithFields(logrus.Fields{
		"request_id": RequestID(c),
		"job_id":     st.ID,
		"units":      len(req.Units),
		"preview":    req.Preview,
	}).Info("render queued")
	return RespondWithJSON(c, fiber.StatusAccepted, st)
}

func checkCameraTags(scenes []SceneAsset) []string {
	known := make(map[string]bool)
	for _, t := range effects.Tags() {
		known[t] = true
	}
	var msgs []string
	for _, s := range scenes {
		if s.CameraEffect == "" || known[effects.NormalizeTag(s.CameraEffect)] {
			continue
		}
		msgs = append(msgs, fmt.Sprintf("scene %s: unknown camera effect %q (want one of %s)", s.SceneID, s.CameraEffect, strings.Join(effects.Tags(), ", ")))
	}
	return msgs
}

// GetRender returns the job state.
func (h *ApplicationHandler) GetRender(c *fiber.Ctx) error {
	st, ok := h.Store.Get(c.Params("id"))
	if !ok {
		return RespondWithError(c, fiber.StatusNotFound, "render not found")
	}
	return RespondWithJSON(c, fiber.StatusOK, st)
}

// ListRenders returns every known job, oldest first.
func (h *ApplicationHandler) ListRenders(c *fiber.Ctx) error {
	return RespondWithJSON(c, fiber.StatusOK, h.Store.List())
}

// GetManifest returns the timeline manifest of a finished job.
func (h *ApplicationHandler) GetManifest(c *fiber.Ctx) error {
	id := c.Params("id")
	res, ok := h.Store.Result(id)
	if !ok {
		if _, exists := h.Store.Get(id); !exists {
			return RespondWithError(c, fiber.StatusNotFound, "render not found")
		}
		return RespondWithError(c, fiber.StatusConflict, "render has not finished")
	}
	m, err := manifest.Read(res.ManifestPath)
	if err != nil {
		h.Logger.WithError(err).WithField("job_id", id).Error("failed to read manifest")
		return RespondWithError(c, fiber.StatusInternalServerError, "could not read manifest")
	}
	return RespondWithJSON(c, fiber.StatusOK, m)
}

// RegenerateRender re-synthesizes one unit of a finished job.
func (h *ApplicationHandler) RegenerateRender(c *fiber.Ctx) error {
	req := new(RegenerateRequest)
	if err := c.BodyParser(req); err != nil {
		return RespondWithError(c, fiber.StatusBadRequest, fmt.Sprintf("cannot parse regenerate JSON: %v", err))
	}
	if err := config.Struct(req); err != nil {
		return RespondWithValidationErrors(c, config.FormatValidationErrors(err))
	}
	st, err := h.Queue.SubmitRegenerate(c.UserContext(), c.Params("id"), *req.Index, req.Unit)
	if err != nil {
		return h.respondJobError(c, err)
	}
	return RespondWithJSON(c, fiber.StatusAccepted, st)
}

func (h *ApplicationHandler) respondJobError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		return RespondWithError(c, fiber.StatusNotFound, "render not found")
	case errors.Is(err, jobs.ErrExists), errors.Is(err, jobs.ErrBusy), errors.Is(err, jobs.ErrNoResult):
		return RespondWithError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, jobs.ErrIndexRange):
		return RespondWithError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrStopped):
		return RespondWithError(c, fiber.StatusServiceUnavailable, err.Error())
	default:
		h.Logger.WithError(err).WithField("request_id", RequestID(c)).Error("job submission failed")
		return RespondWithError(c, fiber.StatusInternalServerError, "could not queue render")
	}
}
