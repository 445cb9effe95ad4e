package handler

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/DanielPopoola/marketplace-escrow/internal/core/domain"
	"github.com/DanielPopoola/marketplace-escrow/internal/logctx"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

//go:embed openapi.yaml
var openAPISpec []byte

func ServeOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openAPISpec)
}

// LoadOpenAPI parses and validates the embedded document.
func LoadOpenAPI() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	return doc, nil
}

// ValidateRequests checks documented RPC requests against the OpenAPI schema.
// Undocumented paths pass through to the mux. A request that fails is not answered
// here: the error travels in the context so the handler can report a disabled
// feature or a missing caller first.
func ValidateRequests(doc *openapi3.T, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}
	options := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		MultiError:         false,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				if errors.Is(err, routers.ErrPathNotFound) || errors.Is(err, routers.ErrMethodNotAllowed) {
					next.ServeHTTP(w, r)
					return
				}
				next.ServeHTTP(w, withRequestError(r, domain.NewInvalidArgumentError("", "Pedido inválido.")))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				r.Body = http.NoBody
				next.ServeHTTP(w, withRequestError(r, domain.NewInvalidArgumentError("", "O corpo do pedido é demasiado grande.")))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				logctx.From(r.Context(), logger).Info("request failed schema validation", "path", r.URL.Path, "error", err)
				r.Body = io.NopCloser(bytes.NewReader(body))
				next.ServeHTTP(w, withRequestError(r, schemaError(err)))
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}, nil
}

type requestErrorKey struct{}

func withRequestError(r *http.Request, err error) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), requestErrorKey{}, err))
}

func requestErrorFrom(ctx context.Context) error {
	err, _ := ctx.Value(requestErrorKey{}).(error)
	return err
}

func schemaError(err error) error {
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		field := strings.Join(schemaErr.JSONPointer(), ".")
		return domain.NewInvalidArgumentError(field, fmt.Sprintf("Valor inválido para o campo %q.", field))
	}
	return domain.NewInvalidArgumentError("", "O corpo do pedido não corresponde ao formato esperado.")
}
