package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	gosip "github.com/ghettovoice/gosip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	client "github.com/zelenin/go-tdlib/client"

	"callaudio/bridge"
	"callaudio/engine"
	"callaudio/orchestrator"
	"callaudio/render"
)

// Gateway feeds SIP and Telegram call events into the audio orchestrator.
type Gateway struct {
	settings *Settings
	engine   *engine.Stub
	renderer *render.Renderer
	audio    *orchestrator.Orchestrator
	registry *bridge.Registry
	sip      *bridge.SIP
	tgClient *client.Client
	contacts *ContactCache
	metrics  *http.Server
	events   chan bridge.Event
}

// NewGateway builds the audio stack. sipSrv and tgCl may be nil when the
// matching bridge is disabled.
func NewGateway(settings *Settings, sipSrv gosip.Server, tgCl *client.Client) (*Gateway, error) {
	g := &Gateway{
		settings: settings,
		tgClient: tgCl,
		contacts: NewContactCache(),
		events:   make(chan bridge.Event, 16),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sinks := render.NullSinks()
	if settings.RenderSink() == "wav" {
		sinks = render.WAVSinks(settings.RenderDir())
	}
	g.engine = engine.NewStub(audioLog, settings.RingerMode())
	g.renderer = render.New(render.Options{
		Sinks:         sinks,
		FrameDuration: settings.FrameDuration(),
		Paced:         true,
		SampleRate:    settings.SampleRate(),
		ToneAmplitude: render.DefaultOptions().ToneAmplitude,
	}, audioLog)

	g.audio = orchestrator.New(orchestrator.Config{
		RingtonePath:       settings.RingtonePath(),
		EarpieceAvailable:  settings.EarpieceAvailable(),
		VibrateWhenRinging: settings.VibrateWhenRinging(),
		PreferHandsFree:    settings.PreferHandsFree(),
	}, orchestrator.Deps{
		Engine:    g.engine,
		HandsFree: g.engine,
		Vibrator:  g.engine,
		Renderer:  g.renderer,
		Metrics:   orchestrator.NewMetrics(reg),
	}, audioLog)
	if err := g.audio.Initialize(); err != nil {
		return nil, err
	}

	g.registry = bridge.NewRegistry(g.audio, settings.EmergencyNumbers(), coreLog)
	if sipSrv != nil {
		g.sip = bridge.NewSIP(sipSrv, g.emit, settings.SIPAutoAnswer(), sipLog)
	}

	if addr := settings.MetricsAddress(); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		g.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}
	return g, nil
}

func (g *Gateway) emit(ev bridge.Event) { g.events <- ev }

// Dial places an outgoing SIP call.
func (g *Gateway) Dial(ctx context.Context, uri string) error {
	if g.sip == nil {
		return errors.New("sip is disabled")
	}
	return g.sip.Dial(ctx, g.settings.SIPUser(), uri)
}

// Start runs the gateway until ctx is canceled.
func (g *Gateway) Start(ctx context.Context, dial string) error {
	if g.sip != nil {
		if err := g.sip.Register(); err != nil {
			return err
		}
	}

	if g.metrics != nil {
		go func() {
			coreLog.Infof("metrics listening on %s", g.metrics.Addr)
			if err := g.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				coreLog.Errorf("metrics server: %v", err)
			}
		}()
	}

	var updates chan client.Type
	if g.tgClient != nil {
		if err := g.contacts.Refresh(g.tgClient); err != nil {
			coreLog.Warnf("initial contacts load failed: %v", err)
		}
		go g.refreshContactsLoop(ctx)

		listener := g.tgClient.GetListener()
		defer listener.Close()
		updates = listener.Updates
	}

	if dial != "" {
		if err := g.Dial(ctx, dial); err != nil {
			coreLog.Errorf("dial %s: %v", dial, err)
		}
	}

	for {
		select {
		case update := <-updates:
			switch u := update.(type) {
			case *client.UpdateCall:
				g.handleTelegramCall(u.Call)
			case *client.UpdateUser:
				g.contacts.Update(u.User)
			}
		case ev := <-g.events:
			g.registry.Apply(ev)
		case <-ctx.Done():
			g.shutdown()
			return nil
		}
	}
}

// shutdown hangs up every SIP call, applying the resulting events,
// releases whatever is left and tears the audio stack down.
func (g *Gateway) shutdown() {
	coreLog.Info("shutting down gateway")
	if g.sip != nil {
		done := make(chan struct{})
		go func() {
			g.sip.HangupAll()
			close(done)
		}()
	drain:
		for {
			select {
			case ev := <-g.events:
				g.registry.Apply(ev)
			case <-done:
				for len(g.events) > 0 {
					g.registry.Apply(<-g.events)
				}
				break drain
			}
		}
	}

	for _, key := range g.registry.Keys() {
		g.registry.Release(key)
	}
	g.audio.Shutdown()
	g.renderer.Wait()

	if g.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = g.metrics.Shutdown(ctx)
	}
}

// refreshContactsLoop periodically reloads the contact cache.
func (g *Gateway) refreshContactsLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := g.contacts.Refresh(g.tgClient); err != nil {
				coreLog.Warnf("contact refresh failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
