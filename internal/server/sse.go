package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/quakesim/internal/encoding"
	"github.com/ZanzyTHEbar/quakesim/internal/inference"
	"github.com/ZanzyTHEbar/quakesim/internal/stream"
)

// handleSimulateStream godoc
// @Summary      Heuristic damage estimate as a progress stream
// @Tags         stream
// @Accept       json
// @Produce      text/event-stream
// @Param        building  body  types.SimulationFeatures  true  "Building attributes"
// @Success      200  {object}  stream.Event
// @Router       /simulate/stream [post]
func (s *Server) handleSimulateStream(c *gin.Context) {
	s.serveStream(c, s.opts.Heuristic, false)
}

// handlePredictStream godoc
// @Summary      Model damage estimate as a progress stream
// @Tags         stream
// @Accept       json
// @Produce      text/event-stream
// @Param        building  body  map[string]interface{}  true  "Building attributes or schema-encoded columns"
// @Success      200  {object}  stream.Event
// @Router       /api/predict/stream [post]
func (s *Server) handlePredictStream(c *gin.Context) {
	if s.modelAvailable() {
		s.serveStream(c, s.opts.Model, true)
		return
	}
	s.serveStream(c, s.opts.Heuristic, false)
}

func (s *Server) serveStream(c *gin.Context, engine inference.Engine, tracked bool) {
	start := time.Now()
	route := c.Request.URL.Path

	var session inference.Session
	body, err := c.GetRawData()
	if err == nil {
		var raw inference.RawInput
		if raw, err = inference.ParseRaw(body); err == nil {
			session = engine.Start(raw)
		}
	}
	if session == nil {
		session = failedSession{err: err}
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	streamer := stream.New(s.opts.StageDelay, sseEmitter(c))
	out, err := streamer.Run(c.Request.Context(), session)
	if tracked {
		s.recordModelResult(err)
	}

	outcome := streamOutcome(err)
	s.opts.Metrics.RecordStream(outcome)
	s.opts.Logger.StreamLogger(route, streamer.Events(), streamer.Progress(), outcome, time.Since(start))
	if err == nil {
		s.opts.Metrics.RecordSimulation(out.Mode)
		s.record(route, c.GetString("request_id"), body, out, time.Since(start))
	}
}

// sseEmitter writes each event as one data frame and flushes it.
func sseEmitter(c *gin.Context) stream.Emitter {
	return func(e stream.Event) error {
		data, err := encoding.MarshalJSON(e)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}
}

func streamOutcome(err error) string {
	switch {
	case err == nil:
		return "complete"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}
