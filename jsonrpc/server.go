package jsonrpc

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strconv"
	"strings"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	"crl/capability"
	"crl/errors"
	"crl/interfaces"
	"crl/jsonx"
	"crl/utils"
)

// --- Error type used by handlers ---

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

const (
	rpcCodeInternal      = -32000
	rpcCodeAuthorization = -32001
	rpcCodeState         = -32002
	rpcCodeTransfer      = -32003
	rpcCodeValidation    = -32602
)

func rpcCodeFor(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrCodeAuthorization:
		return rpcCodeAuthorization
	case errors.ErrCodeValidation:
		return rpcCodeValidation
	case errors.ErrCodeState:
		return rpcCodeState
	case errors.ErrCodeTransferFailed:
		return rpcCodeTransfer
	default:
		return rpcCodeInternal
	}
}

func ledgerErrToRPC(err error) *rpcError {
	return &rpcError{Code: rpcCodeFor(err), Message: err.Error()}
}

func toJRPC2Error(e *rpcError) error {
	if e == nil {
		return nil
	}
	var ledgerError errors.LedgerError
	err := jsonx.Unmarshal([]byte(e.Message), &ledgerError)
	if err == nil {
		return jrpc2.Errorf(jrpc2.Code(e.Code), "%s", ledgerError.Message).WithData(ledgerError)
	}
	return jrpc2.Errorf(jrpc2.Code(e.Code), "%s", e.Message)
}

// --- Params/Results ---

type mintParams struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type bulkMintParams struct {
	Caller   string   `json:"caller"`
	Accounts []string `json:"accounts"`
	Amounts  []string `json:"amounts"`
}

type burnParams struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type approveParams struct {
	Caller  string `json:"caller"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type allowanceParams struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
}

type transferFromParams struct {
	Caller    string `json:"caller"`
	From      string `json:"from"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type depositCollateralParams struct {
	Caller string `json:"caller"`
	Value  string `json:"value"`
}

type withdrawCollateralParams struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type getBalanceParams struct {
	Address string `json:"address"`
}

type ackResponse struct {
	Ok bool `json:"ok"`
}

type getBalanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type getSupplyResponse struct {
	TotalSupply string `json:"total_supply"`
	TotalMinted string `json:"total_minted"`
	TotalBurned string `json:"total_burned"`
}

type getReserveResponse struct {
	Reserve string `json:"reserve"`
}

type getCollateralRatioResponse struct {
	Ratio string `json:"ratio"`
}

type getAllowanceResponse struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}

// Capability
type hasCapabilityParams struct {
	Capability string `json:"capability"`
	Account    string `json:"account"`
}

type capabilityMutationParams struct {
	Caller     string `json:"caller"`
	Capability string `json:"capability"`
	Account    string `json:"account"`
}

type hasCapabilityResponse struct {
	HasCapability bool `json:"has_capability"`
}

// Directory
type addRecipientsParams struct {
	Caller       string   `json:"caller"`
	Accounts     []string `json:"accounts"`
	Names        []string `json:"names"`
	Descriptions []string `json:"descriptions"`
}

type removeRecipientsParams struct {
	Caller   string   `json:"caller"`
	Accounts []string `json:"accounts"`
}

type getRecipientParams struct {
	Account string `json:"account"`
}

type getRecipientsParams struct {
	Cursor uint64 `json:"cursor"`
	Size   uint64 `json:"size"`
}

type recipientInfo struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type getRecipientsResponse struct {
	Recipients []recipientInfo `json:"recipients"`
	NextCursor uint64          `json:"next_cursor"`
}

type getRecipientCountResponse struct {
	Count int `json:"count"`
}

type exportJSONResponse struct {
	JSON string `json:"json"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// --- Server ---

type Server struct {
	addr       string
	ledgerSvc  interfaces.LedgerService
	dirSvc     interfaces.DirectoryService
	capSvc     interfaces.CapabilityService
	corsConfig CORSConfig
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

func NewServer(addr string, ledgerSvc interfaces.LedgerService, dirSvc interfaces.DirectoryService, capSvc interfaces.CapabilityService) *Server {
	return &Server{
		addr:      addr,
		ledgerSvc: ledgerSvc,
		dirSvc:    dirSvc,
		capSvc:    capSvc,
		corsConfig: CORSConfig{
			AllowedOrigins: []string{},
			AllowedMethods: []string{},
			AllowedHeaders: []string{},
			MaxAge:         0,
		},
	}
}

func (s *Server) Start() {
	methods := s.buildMethodMap()
	jh := jhttp.NewBridge(methods, &jhttp.BridgeOptions{Server: &jrpc2.ServerOptions{}})

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		jh.ServeHTTP(w, r)
	})

	http.Handle("/", h)
	go http.ListenAndServe(s.addr, nil)
}

// SetCORSConfig allows configuring CORS settings
func (s *Server) SetCORSConfig(config CORSConfig) {
	s.corsConfig = config
}

func (s *Server) buildMethodMap() handler.Map {
	return handler.Map{
		MethodLedgerMint: handler.New(func(ctx context.Context, p mintParams) (*ackResponse, error) {
			res, err := s.rpcMint(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*ackResponse), nil
		}),
		MethodLedgerBulkMint: handler.New(func(ctx context.Context, p bulkMintParams) (*ackResponse, error) {
			res, err := s.rpcBulkMint(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*ackResponse), nil
		}),
		MethodLedgerBurn: handler.New(func(ctx context.Context, p burnParams) (*ackResponse, error) {
			res, err := s.rpcBurn(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*ackResponse), nil
		}),
		MethodLedgerApprove: handler.New(func(ctx context.Context, p approveParams) (*ackResponse, error) {
			res, err := s.rpcApprove(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*ackResponse), nil
		}),
		MethodLedgerGetAllowance: handler.New(func(ctx context.Context, p allowanceParams) (*getAllowanceResponse, error) {
			res, err := s.rpcGetAllowance(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*getAllowanceResponse), nil
		}),
		MethodLedgerTransferFrom: handler.New(func(ctx context.Context, p transferFromParams) (*ackResponse, error) {
			res, err := s.rpcTransferFrom(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*ackResponse), nil
		}),
		MethodLedgerDepositCollateral: handler.New(func(ctx context.Context, p depositCollateralParams) (*ackResponse, error) {
			res, err := s.rpcDepositCollateral(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*ackResponse), nil
		}),
		MethodLedgerWithdrawCollateral: handler.New(func(ctx context.Context, p withdrawCollateralParams) (*ackResponse, error) {
			res, err := s.rpcWithdrawCollateral(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*ackResponse), nil
		}),
		MethodLedgerGetBalance: handler.New(func(ctx context.Context, p getBalanceParams) (*getBalanceResponse, error) {
			res, err := s.rpcGetBalance(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*getBalanceResponse), nil
		}),
		MethodLedgerGetSupply: handler.New(func(ctx context.Context) (*getSupplyResponse, error) {
			res, err := s.rpcGetSupply()
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*getSupplyResponse), nil
		}),
		MethodLedgerGetReserve: handler.New(func(ctx context.Context) (*getReserveResponse, error) {
			res, err := s.rpcGetReserve()
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*getReserveResponse), nil
		}),
		MethodLedgerGetCollateralRatio: handler.New(func(ctx context.Context) (*getCollateralRatioResponse, error) {
			res, err := s.rpcGetCollateralRatio()
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*getCollateralRatioResponse), nil
		}),
		MethodCapabilityHas: handler.New(func(ctx context.Context, p hasCapabilityParams) (*hasCapabilityResponse, error) {
			res, err := s.rpcHasCapability(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*hasCapabilityResponse), nil
		}),
		MethodCapabilityGrant: handler.New(func(ctx context.Context, p capabilityMutationParams) (*ackResponse, error) {
			res, err := s.rpcGrantCapability(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*ackResponse), nil
		}),
		MethodCapabilityRevoke: handler.New(func(ctx context.Context, p capabilityMutationParams) (*ackResponse, error) {
			res, err := s.rpcRevokeCapability(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*ackResponse), nil
		}),
		MethodDirectoryAddRecipients: handler.New(func(ctx context.Context, p addRecipientsParams) (*ackResponse, error) {
			res, err := s.rpcAddRecipients(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*ackResponse), nil
		}),
		MethodDirectoryRemoveRecipients: handler.New(func(ctx context.Context, p removeRecipientsParams) (*ackResponse, error) {
			res, err := s.rpcRemoveRecipients(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*ackResponse), nil
		}),
		MethodDirectoryGetRecipient: handler.New(func(ctx context.Context, p getRecipientParams) (*recipientInfo, error) {
			res, err := s.rpcGetRecipient(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*recipientInfo), nil
		}),
		MethodDirectoryGetRecipients: handler.New(func(ctx context.Context, p getRecipientsParams) (*getRecipientsResponse, error) {
			res, err := s.rpcGetRecipients(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*getRecipientsResponse), nil
		}),
		MethodDirectoryGetRecipientCount: handler.New(func(ctx context.Context) (*getRecipientCountResponse, error) {
			res, err := s.rpcGetRecipientCount()
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*getRecipientCountResponse), nil
		}),
		MethodDirectoryGetRecipientJSON: handler.New(func(ctx context.Context, p getRecipientParams) (*exportJSONResponse, error) {
			res, err := s.rpcGetRecipientJSON(p)
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*exportJSONResponse), nil
		}),
		MethodDirectoryGetRecipientsJSON: handler.New(func(ctx context.Context) (*exportJSONResponse, error) {
			res, err := s.rpcGetRecipientsJSON()
			if err != nil {
				return nil, toJRPC2Error(err)
			}
			return res.(*exportJSONResponse), nil
		}),
		MethodHealthCheck: handler.New(func(ctx context.Context) (*healthResponse, error) {
			return &healthResponse{Status: "ok"}, nil
		}),
	}
}

// --- Handlers ---

func (s *Server) rpcMint(p mintParams) (interface{}, *rpcError) {
	amount, err := utils.ParseAmount(p.Amount)
	if err != nil {
		return nil, &rpcError{Code: rpcCodeValidation, Message: err.Error()}
	}
	if err := s.ledgerSvc.Mint(p.Caller, p.Account, amount); err != nil {
		return nil, ledgerErrToRPC(err)
	}
	return &ackResponse{Ok: true}, nil
}

func (s *Server) rpcBulkMint(p bulkMintParams) (interface{}, *rpcError) {
	parsed, rerr := parseAmounts(p.Amounts)
	if rerr != nil {
		return nil, rerr
	}
	if err := s.ledgerSvc.BulkMint(p.Caller, p.Accounts, parsed); err != nil {
		return nil, ledgerErrToRPC(err)
	}
	return &ackResponse{Ok: true}, nil
}

func (s *Server) rpcBurn(p burnParams) (interface{}, *rpcError) {
	amount, err := utils.ParseAmount(p.Amount)
	if err != nil {
		return nil, &rpcError{Code: rpcCodeValidation, Message: err.Error()}
	}
	if err := s.ledgerSvc.Burn(p.Caller, amount); err != nil {
		return nil, ledgerErrToRPC(err)
	}
	return &ackResponse{Ok: true}, nil
}

func (s *Server) rpcApprove(p approveParams) (interface{}, *rpcError) {
	amount, err := utils.ParseAmount(p.Amount)
	if err != nil {
		return nil, &rpcError{Code: rpcCodeValidation, Message: err.Error()}
	}
	if err := s.ledgerSvc.Approve(p.Caller, p.Spender, amount); err != nil {
		return nil, ledgerErrToRPC(err)
	}
	return &ackResponse{Ok: true}, nil
}

func (s *Server) rpcGetAllowance(p allowanceParams) (interface{}, *rpcError) {
	allowance, err := s.ledgerSvc.Allowance(p.Owner, p.Spender)
	if err != nil {
		return nil, ledgerErrToRPC(err)
	}
	return &getAllowanceResponse{Owner: p.Owner, Spender: p.Spender, Allowance: allowance.Dec()}, nil
}

func (s *Server) rpcTransferFrom(p transferFromParams) (interface{}, *rpcError) {
	amount, err := utils.ParseAmount(p.Amount)
	if err != nil {
		return nil, &rpcError{Code: rpcCodeValidation, Message: err.Error()}
	}
	if err := s.ledgerSvc.TransferFrom(p.Caller, p.From, p.Recipient, amount); err != nil {
		return nil, ledgerErrToRPC(err)
	}
	return &ackResponse{Ok: true}, nil
}

func (s *Server) rpcDepositCollateral(p depositCollateralParams) (interface{}, *rpcError) {
	value, err := utils.ParseAmount(p.Value)
	if err != nil {
		return nil, &rpcError{Code: rpcCodeValidation, Message: err.Error()}
	}
	if err := s.ledgerSvc.DepositCollateral(p.Caller, value); err != nil {
		return nil, ledgerErrToRPC(err)
	}
	return &ackResponse{Ok: true}, nil
}

func (s *Server) rpcWithdrawCollateral(p withdrawCollateralParams) (interface{}, *rpcError) {
	amount, err := utils.ParseAmount(p.Amount)
	if err != nil {
		return nil, &rpcError{Code: rpcCodeValidation, Message: err.Error()}
	}
	if err := s.ledgerSvc.WithdrawCollateral(p.Caller, p.To, amount); err != nil {
		return nil, ledgerErrToRPC(err)
	}
	return &ackResponse{Ok: true}, nil
}

func (s *Server) rpcGetBalance(p getBalanceParams) (interface{}, *rpcError) {
	balance, err := s.ledgerSvc.BalanceOf(p.Address)
	if err != nil {
		return nil, ledgerErrToRPC(err)
	}
	return &getBalanceResponse{Address: p.Address, Balance: balance.Dec()}, nil
}

func (s *Server) rpcGetSupply() (interface{}, *rpcError) {
	supply, err := s.ledgerSvc.TotalSupply()
	if err != nil {
		return nil, ledgerErrToRPC(err)
	}
	minted, err := s.ledgerSvc.TotalMinted()
	if err != nil {
		return nil, ledgerErrToRPC(err)
	}
	burned, err := s.ledgerSvc.TotalBurned()
	if err != nil {
		return nil, ledgerErrToRPC(err)
	}
	return &getSupplyResponse{
		TotalSupply: supply.Dec(),
		TotalMinted: minted.Dec(),
		TotalBurned: burned.Dec(),
	}, nil
}

func (s *Server) rpcGetReserve() (interface{}, *rpcError) {
	return &getReserveResponse{Reserve: s.ledgerSvc.Reserve().Dec()}, nil
}

func (s *Server) rpcGetCollateralRatio() (interface{}, *rpcError) {
	ratio, err := s.ledgerSvc.CollateralRatio()
	if err != nil {
		return nil, ledgerErrToRPC(err)
	}
	return &getCollateralRatioResponse{Ratio: ratio.Dec()}, nil
}

func (s *Server) rpcHasCapability(p hasCapabilityParams) (interface{}, *rpcError) {
	cap := capability.Capability(p.Capability)
	if !cap.Valid() {
		return nil, &rpcError{Code: rpcCodeValidation, Message: fmt.Sprintf("unknown capability %q", p.Capability)}
	}
	return &hasCapabilityResponse{HasCapability: s.capSvc.Has(cap, p.Account)}, nil
}

func (s *Server) rpcGrantCapability(p capabilityMutationParams) (interface{}, *rpcError) {
	if err := s.capSvc.Grant(p.Caller, capability.Capability(p.Capability), p.Account); err != nil {
		return nil, ledgerErrToRPC(err)
	}
	return &ackResponse{Ok: true}, nil
}

func (s *Server) rpcRevokeCapability(p capabilityMutationParams) (interface{}, *rpcError) {
	if err := s.capSvc.Revoke(p.Caller, capability.Capability(p.Capability), p.Account); err != nil {
		return nil, ledgerErrToRPC(err)
	}
	return &ackResponse{Ok: true}, nil
}

func (s *Server) rpcAddRecipients(p addRecipientsParams) (interface{}, *rpcError) {
	if err := s.dirSvc.Add(p.Caller, p.Accounts, p.Names, p.Descriptions); err != nil {
		return nil, ledgerErrToRPC(err)
	}
	return &ackResponse{Ok: true}, nil
}

func (s *Server) rpcRemoveRecipients(p removeRecipientsParams) (interface{}, *rpcError) {
	if err := s.dirSvc.Remove(p.Caller, p.Accounts); err != nil {
		return nil, ledgerErrToRPC(err)
	}
	return &ackResponse{Ok: true}, nil
}

func (s *Server) rpcGetRecipient(p getRecipientParams) (interface{}, *rpcError) {
	rec, err := s.dirSvc.Get(p.Account)
	if err != nil {
		return nil, ledgerErrToRPC(err)
	}
	return &recipientInfo{Address: rec.Address, Name: rec.Name, Description: rec.Description}, nil
}

func (s *Server) rpcGetRecipients(p getRecipientsParams) (interface{}, *rpcError) {
	size := p.Size
	if size == 0 || size > maxPageSize {
		size = maxPageSize
	}
	page, next, err := s.dirSvc.Page(p.Cursor, size)
	if err != nil {
		return nil, ledgerErrToRPC(err)
	}
	out := make([]recipientInfo, 0, len(page))
	for _, rec := range page {
		out = append(out, recipientInfo{Address: rec.Address, Name: rec.Name, Description: rec.Description})
	}
	return &getRecipientsResponse{Recipients: out, NextCursor: next}, nil
}

func (s *Server) rpcGetRecipientCount() (interface{}, *rpcError) {
	return &getRecipientCountResponse{Count: s.dirSvc.Count()}, nil
}

func (s *Server) rpcGetRecipientJSON(p getRecipientParams) (interface{}, *rpcError) {
	out, err := s.dirSvc.RecipientJSON(p.Account)
	if err != nil {
		return nil, ledgerErrToRPC(err)
	}
	return &exportJSONResponse{JSON: out}, nil
}

func (s *Server) rpcGetRecipientsJSON() (interface{}, *rpcError) {
	out, err := s.dirSvc.RecipientsJSON()
	if err != nil {
		return nil, ledgerErrToRPC(err)
	}
	return &exportJSONResponse{JSON: out}, nil
}

func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	// Set allowed origins
	if len(s.corsConfig.AllowedOrigins) > 0 {
		if s.corsConfig.AllowedOrigins[0] == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			// Check if the request origin is in the allowed list
			origin := r.Header.Get("Origin")
			for _, allowedOrigin := range s.corsConfig.AllowedOrigins {
				if origin == allowedOrigin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
	}

	// Set allowed methods
	if len(s.corsConfig.AllowedMethods) > 0 {
		methods := strings.Join(s.corsConfig.AllowedMethods, ", ")
		w.Header().Set("Access-Control-Allow-Methods", methods)
	}

	// Set allowed headers
	if len(s.corsConfig.AllowedHeaders) > 0 {
		headers := strings.Join(s.corsConfig.AllowedHeaders, ", ")
		w.Header().Set("Access-Control-Allow-Headers", headers)
	}

	// Set max age
	if s.corsConfig.MaxAge > 0 {
		w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", s.corsConfig.MaxAge))
	}
}

// --- Env helpers ---

// CORSFromEnv reads environment variables and constructs a CORSConfig.
// Returns (cfg, true) if any CORS-related env var is set; otherwise (zero, false).
//
// Env vars:
// - CORS_ALLOWED_ORIGINS: comma-separated list
// - CORS_ALLOWED_METHODS: comma-separated list
// - CORS_ALLOWED_HEADERS: comma-separated list
// - CORS_MAX_AGE: integer seconds
func CORSFromEnv() (CORSConfig, bool) {
	origins := os.Getenv("CORS_ALLOWED_ORIGINS")
	methods := os.Getenv("CORS_ALLOWED_METHODS")
	headers := os.Getenv("CORS_ALLOWED_HEADERS")
	maxAgeStr := os.Getenv("CORS_MAX_AGE")

	var maxAge int
	if maxAgeStr != "" {
		if v, err := strconv.Atoi(maxAgeStr); err == nil {
			maxAge = v
		}
	}

	var allowedOrigins, allowedMethods, allowedHeaders []string
	if origins != "" {
		allowedOrigins = splitAndTrim(origins)
	}
	if methods != "" {
		allowedMethods = splitAndTrim(methods)
	}
	if headers != "" {
		allowedHeaders = splitAndTrim(headers)
	}

	if origins == "" && methods == "" && headers == "" && maxAgeStr == "" {
		return CORSConfig{}, false
	}

	return CORSConfig{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: allowedMethods,
		AllowedHeaders: allowedHeaders,
		MaxAge:         maxAge,
	}, true
}
