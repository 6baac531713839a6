package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hitoshi/articlerepo/internal/middleware"
)

// IngestibleLister は取り込み待ちのアーカイブ名を返す。inbox.Inboxが実装する。
type IngestibleLister interface {
	List() ([]string, error)
}

// ingestiblesResponse は取り込み待ち一覧のレスポンス。
type ingestiblesResponse struct {
	Archives []string `json:"archives"`
}

// IngestiblesHandler は取り込み待ちディレクトリのアーカイブ一覧を返す。
type IngestiblesHandler struct {
	lister IngestibleLister
	logger *zap.Logger
}

// NewIngestiblesHandler はIngestiblesHandlerを生成する。
func NewIngestiblesHandler(lister IngestibleLister, logger *zap.Logger) *IngestiblesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestiblesHandler{lister: lister, logger: logger}
}

// ServeHTTP は取り込み待ち一覧を処理する。
// GET /ingestibles
func (h *IngestiblesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	names, err := h.lister.List()
	if err != nil {
		h.logger.Error("failed to list ingestibles", zap.Error(err))
		middleware.WriteError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, ingestiblesResponse{Archives: names})
}
