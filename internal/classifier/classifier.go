// Package classifier runs crop-leaf images through a pretrained network.
//
// A Handle owns the network for the lifetime of the process. It starts
// Unloaded, moves to Loaded on the first successful load and to Failed when a
// load fails. A Failed handle refuses inference until Load succeeds again.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/i474232898/agri-assist/internal/apperr"
)

// Network is a loaded model that maps a preprocessed tensor to logits.
type Network interface {
	Forward(input []float32) ([]float32, error)
	OutputSize() int
	Close() error
}

// Loader opens the network. It is called at most once per in-flight load.
type Loader func(ctx context.Context) (Network, error)

// InferenceObserver records classification latency.
type InferenceObserver interface {
	ObserveInference(d time.Duration, err error)
}

// State is the lifecycle state of a Handle.
type State int

const (
	StateUnloaded State = iota
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unloaded"
	}
}

// Result is one classification.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Index      int     `json:"index"`
	Healthy    bool    `json:"healthy"`
}

// Handle is a load-once, read-many classifier.
type Handle struct {
	loader Loader
	labels []string
	obs    InferenceObserver

	group singleflight.Group

	mu      sync.RWMutex
	state   State
	net     Network
	loadErr error
}

// NewHandle creates an unloaded handle. labels must be in the training-time
// class order of the network the loader opens.
func NewHandle(loader Loader, labels []string, obs InferenceObserver) *Handle {
	return &Handle{
		loader: loader,
		labels: append([]string(nil), labels...),
		obs:    obs,
	}
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Ready reports whether the model is loaded.
func (h *Handle) Ready() bool { return h.State() == StateLoaded }

// Labels returns a copy of the class names.
func (h *Handle) Labels() []string { return append([]string(nil), h.labels...) }

// Load opens the network unless it is already loaded. Concurrent callers share
// a single load. Calling Load on a Failed handle retries the load.
func (h *Handle) Load(ctx context.Context) error {
	if h.Ready() {
		return nil
	}
	_, err, _ := h.group.Do("load", func() (any, error) {
		if h.Ready() {
			return nil, nil
		}
		return nil, h.load(ctx)
	})
	return err
}

func (h *Handle) load(ctx context.Context) error {
	start := time.Now()
	net, err := h.loader(ctx)
	if err == nil && net.OutputSize() != len(h.labels) {
		err = apperr.Modelf("network has %d outputs but %d labels are configured", net.OutputSize(), len(h.labels))
		if cerr := net.Close(); cerr != nil {
			log.Printf("ERROR: closing rejected model: %v", cerr)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil && isContextErr(err) {
		// the caller gave up; the state is left as it was
		log.Printf("INFO: classifier model load abandoned: %v", err)
		return err
	}
	if err != nil {
		h.state = StateFailed
		h.loadErr = err
		log.Printf("ERROR: classifier model load failed: %v", err)
		return err
	}
	h.net = net
	h.state = StateLoaded
	h.loadErr = nil
	log.Printf("INFO: classifier model loaded in %s (%d classes)", time.Since(start).Round(time.Millisecond), len(h.labels))
	return nil
}

// Classify preprocesses the image read from r and returns the top class.
// An unloaded handle is loaded first; a failed one returns a NotReadyError.
func (h *Handle) Classify(ctx context.Context, r io.Reader) (res Result, err error) {
	start := time.Now()
	defer func() {
		if h.obs != nil {
			h.obs.ObserveInference(time.Since(start), err)
		}
	}()

	net, err := h.network(ctx)
	if err != nil {
		return Result{}, err
	}

	input, err := Preprocess(r)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	logits, err := net.Forward(input)
	if err != nil {
		var me *apperr.ModelError
		if errors.As(err, &me) {
			return Result{}, err
		}
		return Result{}, &apperr.ModelError{Err: fmt.Errorf("forward pass: %w", err)}
	}
	if len(logits) != len(h.labels) {
		return Result{}, apperr.Modelf("forward pass returned %d values, expected %d", len(logits), len(h.labels))
	}

	for i, v := range logits {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return Result{}, apperr.Modelf("forward pass produced non-finite output at %d", i)
		}
	}

	probs := Softmax(logits)
	idx := Argmax(probs)
	label := h.labels[idx]
	return Result{
		Label:      label,
		Confidence: float64(probs[idx]),
		Index:      idx,
		Healthy:    strings.Contains(strings.ToLower(label), "healthy"),
	}, nil
}

func (h *Handle) network(ctx context.Context) (Network, error) {
	h.mu.RLock()
	state, net, loadErr := h.state, h.net, h.loadErr
	h.mu.RUnlock()

	switch state {
	case StateLoaded:
		return net, nil
	case StateFailed:
		return nil, apperr.NotReady("classifier model", loadErr)
	}

	if err := h.Load(ctx); err != nil {
		return nil, apperr.NotReady("classifier model", err)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.net, nil
}

// Close releases the network and returns the handle to Unloaded.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.net == nil {
		return nil
	}
	err := h.net.Close()
	h.net = nil
	h.state = StateUnloaded
	return err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
