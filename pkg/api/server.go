package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Settle a cash payment against the customer's open invoices
	// (POST /customers/{customerId}/settlements)
	SettleCustomerInvoices(w http.ResponseWriter, r *http.Request, customerId string)
	// Queue a settlement for asynchronous processing
	// (POST /customers/{customerId}/settlements/schedule)
	ScheduleSettlement(w http.ResponseWriter, r *http.Request, customerId string)
	// List the customer's open invoices, oldest first
	// (GET /customers/{customerId}/invoices)
	ListOpenInvoices(w http.ResponseWriter, r *http.Request, customerId string, params ListOpenInvoicesParams)
	// Get an invoice by ID
	// (GET /invoices/{invoiceId})
	GetInvoiceById(w http.ResponseWriter, r *http.Request, invoiceId string)
}

// MiddlewareFunc wraps a single operation handler.
type MiddlewareFunc func(http.Handler) http.Handler

// ServerInterfaceWrapper converts requests to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

// InvalidParamFormatError is reported when a parameter cannot be bound.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

func (siw *ServerInterfaceWrapper) pathParam(w http.ResponseWriter, r *http.Request, name string, dest *string) bool {
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), dest,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: name, Err: err})
		return false
	}
	return true
}

func (siw *ServerInterfaceWrapper) serve(w http.ResponseWriter, r *http.Request, fn http.HandlerFunc) {
	handler := http.Handler(fn)
	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}
	handler.ServeHTTP(w, r)
}

// SettleCustomerInvoices operation middleware
func (siw *ServerInterfaceWrapper) SettleCustomerInvoices(w http.ResponseWriter, r *http.Request) {
	var customerId string
	if !siw.pathParam(w, r, "customerId", &customerId) {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.SettleCustomerInvoices(w, r, customerId)
	})
}

// ScheduleSettlement operation middleware
func (siw *ServerInterfaceWrapper) ScheduleSettlement(w http.ResponseWriter, r *http.Request) {
	var customerId string
	if !siw.pathParam(w, r, "customerId", &customerId) {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ScheduleSettlement(w, r, customerId)
	})
}

// ListOpenInvoices operation middleware
func (siw *ServerInterfaceWrapper) ListOpenInvoices(w http.ResponseWriter, r *http.Request) {
	var customerId string
	if !siw.pathParam(w, r, "customerId", &customerId) {
		return
	}

	var params ListOpenInvoicesParams
	if err := runtime.BindQueryParameter("form", true, false, "page", r.URL.Query(), &params.Page); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "page", Err: err})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "page_size", r.URL.Query(), &params.PageSize); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "page_size", Err: err})
		return
	}

	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ListOpenInvoices(w, r, customerId, params)
	})
}

// GetInvoiceById operation middleware
func (siw *ServerInterfaceWrapper) GetInvoiceById(w http.ResponseWriter, r *http.Request) {
	var invoiceId string
	if !siw.pathParam(w, r, "invoiceId", &invoiceId) {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetInvoiceById(w, r, invoiceId)
	})
}

// ChiServerOptions configures HandlerWithOptions.
type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// Handler creates http.Handler with routing matching the API.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

// HandlerFromMux creates http.Handler with routing matching the API, mounted on r.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{BaseRouter: r})
}

// HandlerWithOptions creates http.Handler with additional options.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/customers/{customerId}/settlements", wrapper.SettleCustomerInvoices)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/customers/{customerId}/settlements/schedule", wrapper.ScheduleSettlement)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/customers/{customerId}/invoices", wrapper.ListOpenInvoices)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/invoices/{invoiceId}", wrapper.GetInvoiceById)
	})

	return r
}
