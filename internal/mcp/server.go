package mcp

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultRequestTimeout = 15 * time.Second

type ServerConfig struct {
	RequestTimeout time.Duration
}

// NewServer registers the market tools and resources. Any reader may be nil;
// the matching tools then report the service as unavailable.
func NewServer(tracer trace.Tracer, market MarketReader, account AccountReader, decisions DecisionReader, cfg ServerConfig) *sdkmcp.Server {
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	srv := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "alpha-arena-mcp",
		Version: "1.0.0",
	}, &sdkmcp.ServerOptions{
		Instructions: "Use these tools/resources to inspect aggregated market data, indicator bundles, prompt text and the latest model decisions. Nothing here places orders.",
		Logger:       slog.Default(),
	})

	srv.AddReceivingMiddleware(timeoutMiddleware(requestTimeout))
	if tracer != nil {
		srv.AddReceivingMiddleware(tracingMiddleware(tracer))
	}

	registerTools(srv, market, account, decisions)
	registerResources(srv, market, decisions)
	return srv
}

func NewHTTPTransportHandler(server *sdkmcp.Server, cfg HTTPHandlerConfig) http.Handler {
	base := sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server {
		return server
	}, &sdkmcp.StreamableHTTPOptions{})
	return wrapHTTPHandler(base, cfg)
}

func timeoutMiddleware(timeout time.Duration) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		if timeout <= 0 {
			return next
		}
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, method, req)
		}
	}
}

// tracingMiddleware opens one span per request. Tool calls that fail inside
// the handler come back as results with IsError set, so both paths mark the
// span as failed.
func tracingMiddleware(tracer trace.Tracer) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			target := requestTarget(req)
			ctx, span := tracer.Start(ctx, spanName(method, target))
			defer span.End()

			span.SetAttributes(attribute.String("mcp.method", method))
			if target != "" {
				span.SetAttributes(attribute.String("mcp.target", target))
			}

			started := time.Now()
			result, err := next(ctx, method, req)
			elapsed := time.Since(started)

			switch {
			case err != nil:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				log.Printf("mcp %s %s failed after %s: %v", method, target, elapsed, err)
			case toolFailed(result):
				span.SetStatus(codes.Error, "tool error")
				log.Printf("mcp %s %s returned a tool error after %s", method, target, elapsed)
			}
			return result, err
		}
	}
}

// requestTarget is the tool name or resource URI a request addresses.
func requestTarget(req sdkmcp.Request) string {
	switch r := req.(type) {
	case *sdkmcp.CallToolRequest:
		return strings.TrimSpace(r.Params.Name)
	case *sdkmcp.ReadResourceRequest:
		return strings.TrimSpace(r.Params.URI)
	}
	return ""
}

func spanName(method, target string) string {
	switch {
	case method == "tools/call" && target != "":
		return "mcp.tool." + target
	case method == "resources/read":
		return "mcp.resource.read"
	default:
		return "mcp." + strings.ReplaceAll(method, "/", ".")
	}
}

func toolFailed(result sdkmcp.Result) bool {
	res, ok := result.(*sdkmcp.CallToolResult)
	return ok && res != nil && res.IsError
}
