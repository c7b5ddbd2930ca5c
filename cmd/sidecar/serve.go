package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/config"
	"github.com/meshcore/sidecar/grpcplane"
	"github.com/meshcore/sidecar/identity"
	"github.com/meshcore/sidecar/proxy"
	"github.com/meshcore/sidecar/sniff"
	"github.com/meshcore/sidecar/svc/admission"
	"github.com/meshcore/sidecar/telemetry"
)

// errStubsNotLinked is returned by the placeholder stream openers below: the
// wire schema for the control-plane API is explicitly out of scope, so a
// real deployment links generated protobuf stubs in place of these before
// building; see DESIGN.md for the justification.
var errStubsNotLinked = errors.New("cmd/sidecar: no profile/discovery stream stubs linked into this build")

func newRunCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sidecar proxy in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSidecar(cmd.Context(), flags)
		},
	}
}

func newCheckConfigCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration file without binding listeners",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d listener(s), app_addr=%q\n", len(cfg.Listeners), cfg.AppAddr)
			return nil
		},
	}
}

func runSidecar(ctx context.Context, flags *rootFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	logger, err := telemetry.ConfigureLogging(level, true)
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}
	defer logger.Sync()

	if cfg.Tracing.Enabled {
		shutdown, err := telemetry.ConfigureTracing(ctx, telemetry.TracingConfig{
			CollectorAddr: cfg.Tracing.CollectorAddr,
			ServiceName:   "sidecar",
			SampleRatio:   cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("configuring tracing: %w", err)
		}
		defer shutdown(context.Background())
	}

	idProvider, err := identity.NewStaticProvider(cfg.IdentityFile)
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dial := grpcplane.Dial(func(ctx context.Context, addr string) (*grpc.ClientConn, error) {
		return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	})
	backoff := grpcplane.DefaultBackoff(50*time.Millisecond, 10*time.Second)
	profileClient := grpcplane.NewProfileClient(cfg.ControlPlane.ProfileAddr, dial, unlinkedProfileOpener, backoff)
	discoveryClient := grpcplane.NewDiscoveryClient(cfg.ControlPlane.DiscoveryAddr, dial, unlinkedDiscoveryOpener, backoff)

	transport := &http.Transport{}
	detector := sniff.NewDetector()

	var tlsTerminator collaborators.TlsTerminator
	if _, ok := idProvider.LocalIdentity(); ok {
		tlsTerminator = identity.NewTLSTerminator(&tls.Config{MinVersion: tls.VersionTLS13})
	}

	group, gctx := errgroup.WithContext(ctx)
	for _, l := range cfg.Listeners {
		ln, err := net.Listen("tcp", l.Addr)
		if err != nil {
			return fmt.Errorf("binding %s: %w", l.Addr, err)
		}
		if l.Inbound {
			in := proxy.NewInbound(proxy.InboundConfig{
				Admission:     admission.Config{BufferBound: cfg.Admission.BufferBound, ConcurrencyLimit: cfg.Admission.ConcurrencyLimit},
				CacheCapacity: cfg.Cache.Capacity,
				CacheIdleAge:  cfg.Cache.IdleAge,
				AppAddr:       cfg.AppAddr,
				Transport:     transport,
				ProfileClient: profileClient,
				TLSTerminator: tlsTerminator,
				Detector:      detector,
			})
			group.Go(func() error { in.Run(gctx, 30*time.Second); return nil })
			group.Go(func() error { return in.Serve(gctx, ln) })
			logger.Sugar().Infof("inbound listener bound on %s", l.Addr)
		} else {
			out := proxy.NewOutbound(proxy.OutboundConfig{
				Admission:        admission.Config{BufferBound: cfg.Admission.BufferBound, ConcurrencyLimit: cfg.Admission.ConcurrencyLimit},
				CacheCapacity:    cfg.Cache.Capacity,
				CacheIdleAge:     cfg.Cache.IdleAge,
				DiscoverCapacity: 64,
				Transport:        transport,
				ProfileClient:    profileClient,
				DiscoveryClient:  discoveryClient,
				Identity:         idProvider,
				Detector:         detector,
			})
			group.Go(func() error { out.Run(gctx, 30*time.Second); return nil })
			group.Go(func() error { return out.Serve(gctx, ln) })
			logger.Sugar().Infof("outbound listener bound on %s", l.Addr)
		}
	}

	<-gctx.Done()
	logger.Info("draining")
	return group.Wait()
}

func unlinkedProfileOpener(ctx context.Context, cc *grpc.ClientConn, destination string) (grpcplane.RouteStream, error) {
	return nil, errStubsNotLinked
}

func unlinkedDiscoveryOpener(ctx context.Context, cc *grpc.ClientConn, concrete string) (grpcplane.DiscoveryStream, error) {
	return nil, errStubsNotLinked
}
