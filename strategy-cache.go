package strategycache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/strategy-cache/strategy-cache/identity"
	"github.com/strategy-cache/strategy-cache/store"
)

type Config struct {
	// Storage for cached responses.
	Store store.Store
	// Generation tag distinguishing this deployment's stores from the
	// previous one. Defaults to "v1".
	Generation string
	// URLs fetched into the precache at startup.
	Manifest []string
	// Hosts that must never be intercepted (the origin's own backend).
	BypassHosts []string
	// Hosts serving web font assets. Defaults to the Google font hosts.
	FontHosts []string
	// Handler bypassed requests are forwarded to.
	// If nil, bypassed requests are fetched from the network directly.
	Next http.Handler
	// Optional notification display hook.
	Notifier Notifier
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Headers that participate in request identity, in addition to
	// method and URL. Usually left empty.
	IdentityHeaders []string
	// Cap on concurrent background revalidations. Defaults to 32.
	MaxRevalidations int64
}

// Engine is the request routing and caching policy layer.
// It classifies every intercepted request, runs the matching caching
// strategy against the right generation-qualified store, and keeps the
// stores coherent across generations.
type Engine struct {
	lifecycle  *Lifecycle
	control    *ControlChannel
	classifier Classifier
	strategies *strategies
	keyer      identity.Keyer
	store      store.Store
	manifest   []string
	notifier   Notifier
	next       http.Handler
	log        zerolog.Logger
	handlers   map[EventKind]handlerFunc
}

// CreateEngine initializes the strategy-cache instance.
// It wires up the lifecycle, control channel, and strategy executors;
// precaching starts when the install event is handled.
func CreateEngine(config Config) *Engine {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	generation := config.Generation
	if generation == "" {
		generation = "v1"
	}

	st := config.Store
	if st == nil {
		st = store.NewMemoryStore()
	}

	keyer := identity.NewKeyer(config.IdentityHeaders...)
	classifier := NewClassifier(config.BypassHosts...)
	if len(config.FontHosts) > 0 {
		classifier.FontHosts = config.FontHosts
	}

	e := &Engine{
		lifecycle:  NewLifecycle(generation, st, keyer, logger),
		classifier: classifier,
		strategies: newStrategies(keyer, logger, config.MaxRevalidations),
		keyer:      keyer,
		store:      st,
		manifest:   config.Manifest,
		notifier:   config.Notifier,
		next:       config.Next,
		log:        logger,
	}
	e.control = NewControlChannel(e.lifecycle, logger)
	e.handlers = map[EventKind]handlerFunc{
		EventInstall:           e.handleInstall,
		EventActivate:          e.handleActivate,
		EventFetch:             e.handleFetch,
		EventMessage:           e.handleMessage,
		EventNotificationClick: e.handleNotificationClick,
	}
	return e
}

// Lifecycle exposes the engine's lifecycle manager.
func (e *Engine) Lifecycle() *Lifecycle {
	return e.lifecycle
}

// Control exposes the engine's control channel.
func (e *Engine) Control() *ControlChannel {
	return e.control
}

// EventKind names the events the engine dispatches on.
type EventKind string

const (
	EventInstall           EventKind = "install"
	EventActivate          EventKind = "activate"
	EventFetch             EventKind = "fetch"
	EventMessage           EventKind = "message"
	EventNotificationClick EventKind = "notificationclick"
)

// Event is delivered to the engine by the host runtime.
// Only the field matching the kind is consulted.
type Event struct {
	Kind         EventKind
	Request      *http.Request
	Message      Message
	Notification Notification
}

// Outcome is the result of handling an event.
// For fetch events either Response is set or Bypass is true;
// a bypassed request must be forwarded untouched.
type Outcome struct {
	Response *http.Response
	Bypass   bool
	Class    Class
}

type handlerFunc func(ctx context.Context, ev Event) (Outcome, error)

// Handle dispatches an event to its handler.
// The engine's public surface is this dispatch table; how the host
// runtime delivers events is its own concern.
func (e *Engine) Handle(ctx context.Context, ev Event) (Outcome, error) {
	handler, ok := e.handlers[ev.Kind]
	if !ok {
		return Outcome{}, fmt.Errorf("unknown event kind: %s", ev.Kind)
	}
	return handler(ctx, ev)
}

func (e *Engine) handleInstall(ctx context.Context, ev Event) (Outcome, error) {
	e.lifecycle.Precache(ctx, e.manifest)
	return Outcome{}, nil
}

func (e *Engine) handleActivate(ctx context.Context, ev Event) (Outcome, error) {
	e.lifecycle.Cutover(ctx)
	return Outcome{}, nil
}

func (e *Engine) handleMessage(ctx context.Context, ev Event) (Outcome, error) {
	e.control.Dispatch(ctx, ev.Message)
	return Outcome{}, nil
}

func (e *Engine) handleNotificationClick(ctx context.Context, ev Event) (Outcome, error) {
	e.NotificationClicked(ev.Notification)
	return Outcome{}, nil
}

func (e *Engine) handleFetch(ctx context.Context, ev Event) (Outcome, error) {
	r := ev.Request
	class := e.classifier.Classify(r)
	if class == ClassBypass {
		return Outcome{Bypass: true, Class: class}, nil
	}
	runtime := e.store.Open(e.lifecycle.StoreName(RoleRuntime))
	var res *http.Response
	switch class {
	case ClassFont:
		res = e.strategies.cacheFirst(ctx, r, runtime)
	case ClassDocument:
		res = e.strategies.networkFirst(ctx, r, runtime, e.documentFallback)
	case ClassStaticAsset:
		res = e.strategies.staleWhileRevalidate(ctx, r, runtime)
	default:
		res = e.strategies.networkFirst(ctx, r, runtime, nil)
	}
	return Outcome{Response: res, Class: class}, nil
}

// documentFallback is the last resort for document requests: the
// precached root document if the manifest provided one, otherwise the
// built-in offline page.
func (e *Engine) documentFallback(ctx context.Context, r *http.Request) *http.Response {
	precache := e.store.Open(e.lifecycle.StoreName(RolePrecache))
	if root, err := rootRequest(r); err == nil {
		if rec, ok, err := precache.Get(ctx, e.keyer.Key(root)); err == nil && ok {
			return rec.Response()
		}
	}
	return offlineResponse()
}

// rootRequest builds the root-document request for the request's origin.
func rootRequest(r *http.Request) (*http.Request, error) {
	u, err := url.Parse(identity.RequestURL(r))
	if err != nil {
		return nil, err
	}
	u.Path = "/"
	u.RawQuery = ""
	u.Fragment = ""
	return http.NewRequest(http.MethodGet, u.String(), nil)
}

// ServeHTTP implements the http.Handler interface.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	out, err := e.Handle(r.Context(), Event{Kind: EventFetch, Request: r})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if out.Bypass {
		e.forward(w, r)
		return
	}
	e.logRequest(r, out.Class)
	e.writeResponse(w, out.Response, out.Class)
}

// forward passes a bypassed request through untouched.
func (e *Engine) forward(w http.ResponseWriter, r *http.Request) {
	if e.next != nil {
		e.next.ServeHTTP(w, r)
		return
	}
	res, err := e.strategies.fetch(r.Context(), r)
	if err != nil {
		e.log.Error().Err(err).Str("url", identity.RequestURL(r)).Msg("Could not forward request")
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	e.writeResponse(w, res, ClassBypass)
}

func (e *Engine) writeResponse(w http.ResponseWriter, res *http.Response, class Class) {
	if res.Body != nil {
		defer res.Body.Close()
	}
	copyHeader(w.Header(), res.Header)
	if class != ClassBypass {
		w.Header().Set("X-Strategy", class.String())
	}
	w.WriteHeader(res.StatusCode)
	bytesWritten, err := io.Copy(w, res.Body)
	if err != nil {
		e.log.Error().Err(err).Msg("Could not write response body to client")
	}
	e.log.Trace().Msgf("Wrote body (%d bytes)", bytesWritten)
}

func (e *Engine) logRequest(r *http.Request, class Class) {
	e.log.Debug().
		Str("method", r.Method).
		Str("url", identity.RequestURL(r)).
		Str("class", class.String()).
		Str("state", e.lifecycle.State().String()).
		Msg("Serving intercepted request")
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
