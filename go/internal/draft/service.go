package draft

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/mcdev12/fearless/go/internal/draft/engine"
	"github.com/mcdev12/fearless/go/internal/draft/orchestrator"
	"github.com/mcdev12/fearless/go/internal/draft/series"
	"github.com/rs/zerolog/log"
)

const (
	DraftServiceName  = "draft.v1.DraftService"
	SeriesServiceName = "draft.v1.SeriesService"

	DraftServiceCreateDraftProcedure = "/" + DraftServiceName + "/CreateDraft"
	DraftServiceStartDraftProcedure  = "/" + DraftServiceName + "/StartDraft"
	DraftServiceGetDraftProcedure    = "/" + DraftServiceName + "/GetDraft"

	SeriesServiceCreateSeriesProcedure = "/" + SeriesServiceName + "/CreateSeries"
	SeriesServiceNextGameProcedure     = "/" + SeriesServiceName + "/NextGame"
	SeriesServiceGetSeriesProcedure    = "/" + SeriesServiceName + "/GetSeries"
)

// DraftOrchestrator is the part of the orchestrator exposed over RPC.
type DraftOrchestrator interface {
	CreateDraft(ctx context.Context, req orchestrator.CreateDraftRequest) (engine.DraftState, error)
	StartDraft(ctx context.Context, draftID string) (engine.DraftState, error)
	Get(ctx context.Context, draftID string) (engine.DraftState, error)
}

// SeriesCoordinator is the part of the series coordinator exposed over RPC.
type SeriesCoordinator interface {
	CreateSeries(ctx context.Context, req series.CreateSeriesRequest) (engine.DraftState, error)
	NextGame(ctx context.Context, seriesID string, req series.NextGameRequest) (engine.DraftState, error)
	GetSeries(ctx context.Context, seriesID string) (series.SeriesState, error)
}

type DraftIDRequest struct {
	DraftID string `json:"draftId"`
}

type DraftResponse struct {
	Draft engine.DraftState `json:"draft"`
}

type SeriesIDRequest struct {
	SeriesID string `json:"seriesId"`
}

type NextGameRequest struct {
	SeriesID      string      `json:"seriesId"`
	BlueTeamName  string      `json:"blueTeamName"`
	RedTeamName   string      `json:"redTeamName"`
	FirstPickTeam engine.Team `json:"firstPickTeam"`
}

type SeriesResponse struct {
	Series series.SeriesState `json:"series"`
}

// Service implements the draft and series RPCs
type Service struct {
	drafts DraftOrchestrator
	series SeriesCoordinator
}

// NewService creates a new draft service
func NewService(drafts DraftOrchestrator, series SeriesCoordinator) *Service {
	return &Service{
		drafts: drafts,
		series: series,
	}
}

// CreateDraft creates a standalone draft waiting on its ready check
func (s *Service) CreateDraft(
	ctx context.Context,
	req *connect.Request[orchestrator.CreateDraftRequest],
) (*connect.Response[DraftResponse], error) {
	msg := *req.Msg
	msg.FirstPickTeam = normalizeTeam(msg.FirstPickTeam)

	state, err := s.drafts.CreateDraft(ctx, msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DraftResponse{Draft: state}), nil
}

// StartDraft starts the turn clock of a draft whose teams are both ready
func (s *Service) StartDraft(
	ctx context.Context,
	req *connect.Request[DraftIDRequest],
) (*connect.Response[DraftResponse], error) {
	if req.Msg.DraftID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("draftId is required"))
	}

	state, err := s.drafts.StartDraft(ctx, req.Msg.DraftID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DraftResponse{Draft: state}), nil
}

// GetDraft returns a draft snapshot
func (s *Service) GetDraft(
	ctx context.Context,
	req *connect.Request[DraftIDRequest],
) (*connect.Response[DraftResponse], error) {
	if req.Msg.DraftID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("draftId is required"))
	}

	state, err := s.drafts.Get(ctx, req.Msg.DraftID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DraftResponse{Draft: state}), nil
}

// CreateSeries starts a fearless series and returns its first draft
func (s *Service) CreateSeries(
	ctx context.Context,
	req *connect.Request[series.CreateSeriesRequest],
) (*connect.Response[DraftResponse], error) {
	msg := *req.Msg
	msg.FirstPickTeam = normalizeTeam(msg.FirstPickTeam)

	state, err := s.series.CreateSeries(ctx, msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DraftResponse{Draft: state}), nil
}

// NextGame creates the next game's draft once the current one is complete
func (s *Service) NextGame(
	ctx context.Context,
	req *connect.Request[NextGameRequest],
) (*connect.Response[DraftResponse], error) {
	if req.Msg.SeriesID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("seriesId is required"))
	}

	state, err := s.series.NextGame(ctx, req.Msg.SeriesID, series.NextGameRequest{
		BlueTeamName:  req.Msg.BlueTeamName,
		RedTeamName:   req.Msg.RedTeamName,
		FirstPickTeam: normalizeTeam(req.Msg.FirstPickTeam),
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DraftResponse{Draft: state}), nil
}

// GetSeries returns the series progress and lock set
func (s *Service) GetSeries(
	ctx context.Context,
	req *connect.Request[SeriesIDRequest],
) (*connect.Response[SeriesResponse], error) {
	if req.Msg.SeriesID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("seriesId is required"))
	}

	state, err := s.series.GetSeries(ctx, req.Msg.SeriesID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SeriesResponse{Series: state}), nil
}

// NewDraftServiceHandler builds the HTTP handler serving the draft RPCs.
func NewDraftServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec())}, opts...)

	mux := http.NewServeMux()
	mux.Handle(DraftServiceCreateDraftProcedure, connect.NewUnaryHandler(DraftServiceCreateDraftProcedure, svc.CreateDraft, opts...))
	mux.Handle(DraftServiceStartDraftProcedure, connect.NewUnaryHandler(DraftServiceStartDraftProcedure, svc.StartDraft, opts...))
	mux.Handle(DraftServiceGetDraftProcedure, connect.NewUnaryHandler(DraftServiceGetDraftProcedure, svc.GetDraft, opts...))
	return "/" + DraftServiceName + "/", mux
}

// NewSeriesServiceHandler builds the HTTP handler serving the series RPCs.
func NewSeriesServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec())}, opts...)

	mux := http.NewServeMux()
	mux.Handle(SeriesServiceCreateSeriesProcedure, connect.NewUnaryHandler(SeriesServiceCreateSeriesProcedure, svc.CreateSeries, opts...))
	mux.Handle(SeriesServiceNextGameProcedure, connect.NewUnaryHandler(SeriesServiceNextGameProcedure, svc.NextGame, opts...))
	mux.Handle(SeriesServiceGetSeriesProcedure, connect.NewUnaryHandler(SeriesServiceGetSeriesProcedure, svc.GetSeries, opts...))
	return "/" + SeriesServiceName + "/", mux
}

func normalizeTeam(t engine.Team) engine.Team {
	if parsed, err := engine.ParseTeam(string(t)); err == nil {
		return parsed
	}
	return engine.Team(strings.TrimSpace(string(t)))
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrDraftNotFound), errors.Is(err, series.ErrSeriesNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, series.ErrSeriesComplete), errors.Is(err, series.ErrGameInProgress):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, series.ErrInvalidBestOf), errors.Is(err, series.ErrInvalidRequest):
		return connect.NewError(connect.CodeInvalidArgument, err)
	}

	switch orchestrator.ErrorCode(err) {
	case orchestrator.CodeInvalidArgument:
		return connect.NewError(connect.CodeInvalidArgument, err)
	case orchestrator.CodeFailedPrecondition:
		return connect.NewError(connect.CodeFailedPrecondition, err)
	default:
		log.Error().Err(err).Msg("draft rpc failed")
		return connect.NewError(connect.CodeInternal, err)
	}
}
