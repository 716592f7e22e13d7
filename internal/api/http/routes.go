package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/i474232898/agri-assist/internal/advisory"
	"github.com/i474232898/agri-assist/internal/apperr"
	"github.com/i474232898/agri-assist/internal/assistant"
	"github.com/i474232898/agri-assist/internal/classifier"
	"github.com/i474232898/agri-assist/internal/market"
	"github.com/i474232898/agri-assist/internal/weather"
)

const serviceName = "agri-assist"

var validate = validator.New()

// Deps are the services behind the HTTP API.
type Deps struct {
	Weather    *weather.Service
	Classifier *classifier.Handle
	Assistant  *assistant.Assistant
	Market     *market.Loader
	MarketFile string
	Metrics    http.Handler

	DefaultDays int
	MaxDays     int
}

// ErrorHandler renders every error as {"error": true, "message": ...} with a
// status derived from its category.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return c.Status(StatusFor(err)).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// StatusFor maps an error onto an HTTP status code.
func StatusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case apperr.IsInput(err):
		return fiber.StatusBadRequest
	case apperr.IsModel(err):
		return fiber.StatusInternalServerError
	case apperr.IsNotReady(err):
		return fiber.StatusServiceUnavailable
	case apperr.IsProvider(err):
		return fiber.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	if d.DefaultDays <= 0 {
		d.DefaultDays = weather.DefaultHorizon
	}
	if d.MaxDays < d.DefaultDays {
		d.MaxDays = d.DefaultDays
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":  "ok",
			"service": serviceName,
		}
		if d.Classifier != nil {
			body["model"] = d.Classifier.State().String()
		}
		if d.Assistant != nil {
			body["assistant"] = d.Assistant.Configured()
		}
		return c.JSON(body)
	})
	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(d.Metrics))
	}

	v1 := app.Group("/api/v1")
	if d.Weather != nil {
		registerWeather(v1, d)
	}
	if d.Classifier != nil {
		registerDetector(v1, d.Classifier)
	}
	if d.Assistant != nil {
		registerAssistant(v1, d.Assistant)
	}
	if d.Market != nil {
		registerMarket(v1, d.Market, d.MarketFile)
	}
}

// forecastQuery holds query parameters for the weather endpoints.
type forecastQuery struct {
	Location string `validate:"required,max=120"`
	Days     int    `validate:"gte=1"`
	Crop     string `validate:"max=32"`
}

func parseForecastQuery(c *fiber.Ctx, d Deps) (forecastQuery, error) {
	q := forecastQuery{
		Location: strings.TrimSpace(c.Query("location")),
		Days:     d.DefaultDays,
		Crop:     c.Query("crop"),
	}
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, errors.New("days must be an integer")
		}
		q.Days = n
	}
	if err := validate.Struct(q); err != nil {
		return q, err
	}
	if q.Days > d.MaxDays {
		return q, errors.New("days must be between 1 and " + strconv.Itoa(d.MaxDays))
	}
	return q, nil
}

func registerWeather(v1 fiber.Router, d Deps) {
	v1.Get("/weather/forecast", func(c *fiber.Ctx) error {
		q, err := parseForecastQuery(c, d)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		bundle, err := d.Weather.Forecast(c.UserContext(), q.Location, q.Days)
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"forecast": bundle,
			"advisory": advisory.Evaluate(bundle, advisory.ParseCrop(q.Crop)),
		})
	})

	v1.Get("/weather/advisory", func(c *fiber.Ctx) error {
		q, err := parseForecastQuery(c, d)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		bundle, err := d.Weather.Forecast(c.UserContext(), q.Location, q.Days)
		if err != nil {
			return err
		}

		adv := advisory.Evaluate(bundle, advisory.ParseCrop(q.Crop))
		return c.JSON(fiber.Map{
			"location":   bundle.Location,
			"provider":   bundle.Provider,
			"crop":       adv.Crop,
			"alerts":     adv.Alerts,
			"cropAdvice": adv.CropAdvice,
			"irrigation": adv.Irrigation,
		})
	})
}

func registerDetector(v1 fiber.Router, h *classifier.Handle) {
	v1.Post("/detector/classify", func(c *fiber.Ctx) error {
		file, err := c.FormFile("image")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "missing image file (form field 'image')")
		}
		if file.Size > classifier.MaxImageBytes {
			return fiber.NewError(fiber.StatusRequestEntityTooLarge, "image too large")
		}

		f, err := file.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "failed to open uploaded file")
		}
		defer f.Close()

		res, err := h.Classify(c.UserContext(), f)
		if err != nil {
			return err
		}
		return c.JSON(res)
	})

	v1.Post("/detector/reload", func(c *fiber.Ctx) error {
		if err := h.Load(c.UserContext()); err != nil {
			var me *apperr.ModelError
			if errors.As(err, &me) {
				return err
			}
			return apperr.NotReady("classifier model", err)
		}
		return c.JSON(fiber.Map{"model": h.State().String()})
	})
}

// chatRequest is the body of a chat turn.
type chatRequest struct {
	SessionID   string   `json:"session_id" validate:"omitempty,max=64"`
	Prompt      string   `json:"prompt" validate:"required,max=4000"`
	MaxTokens   *int     `json:"max_tokens" validate:"omitempty,gte=32,lte=1024"`
	Temperature *float64 `json:"temperature" validate:"omitempty,gte=0,lte=1.2"`
}

func (r chatRequest) options() assistant.Options {
	opts := assistant.DefaultOptions()
	if r.MaxTokens != nil {
		opts.MaxTokens = *r.MaxTokens
	}
	if r.Temperature != nil {
		opts.Temperature = float32(*r.Temperature)
	}
	return opts
}

func registerAssistant(v1 fiber.Router, a *assistant.Assistant) {
	v1.Post("/assistant/chat", func(c *fiber.Ctx) error {
		var req chatRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		reply, err := a.Reply(c.UserContext(), req.SessionID, req.Prompt, req.options())
		if err != nil {
			return err
		}
		return c.JSON(reply)
	})

	v1.Get("/assistant/sessions/:id", func(c *fiber.Ctx) error {
		conv, err := a.History(c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(conv)
	})

	v1.Delete("/assistant/sessions/:id", func(c *fiber.Ctx) error {
		if !a.Forget(c.Params("id")) {
			return fiber.NewError(fiber.StatusNotFound, "no conversation for session")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

// pricePoint is one row of a commodity price series.
type pricePoint struct {
	Date       string   `json:"date"`
	Market     string   `json:"market,omitempty"`
	MinPrice   *float64 `json:"min_price"`
	MaxPrice   *float64 `json:"max_price"`
	ModalPrice *float64 `json:"modal_price"`
}

func registerMarket(v1 fiber.Router, l *market.Loader, file string) {
	v1.Get("/market/commodities", func(c *fiber.Ctx) error {
		ds, err := l.Load(file)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"source":      ds.Source,
			"commodities": ds.Commodities(),
		})
	})

	v1.Get("/market/prices", func(c *fiber.Ctx) error {
		ds, err := l.Load(file)
		if err != nil {
			return err
		}
		series, err := ds.Series(c.Query("commodity"))
		if err != nil {
			return err
		}

		points := make([]pricePoint, 0, len(series))
		for _, r := range series {
			points = append(points, pricePoint{
				Date:       r.Date.Format("2006-01-02"),
				Market:     r.Market,
				MinPrice:   r.MinPrice,
				MaxPrice:   r.MaxPrice,
				ModalPrice: r.ModalPrice,
			})
		}
		return c.JSON(fiber.Map{
			"commodity": series[0].Commodity,
			"prices":    points,
		})
	})
}
