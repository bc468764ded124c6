package worklin

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/worklin/worklin/pkg/client"
	"github.com/worklin/worklin/pkg/models"
	"github.com/worklin/worklin/pkg/reconcile"
	"github.com/worklin/worklin/pkg/store"
)

// Page handlers. Every edit goes through the reconciliation engine, which
// applies it to the session right away and queues the remote write.

func (a *App) handleListPages(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.engine.Session().State().Pages)
}

func (a *App) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	var req client.CreatePageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	page, err := a.engine.AddPage(r.Context(), req.Title, req.Icon)
	if err != nil {
		// the page exists locally; only the subscription failed
		a.log.Warn().Err(err).Str("page", page.ID.String()).Msg("failed to follow new page")
	}
	respondJSON(w, http.StatusCreated, page)
}

func (a *App) handleGetPage(w http.ResponseWriter, r *http.Request) {
	id, ok := pageID(w, r)
	if !ok {
		return
	}
	page := a.engine.Session().Page(id)
	if page == nil {
		respondError(w, http.StatusNotFound, "Page not found")
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (a *App) handleUpdatePage(w http.ResponseWriter, r *http.Request) {
	id, ok := pageID(w, r)
	if !ok {
		return
	}
	var patch models.PagePatch
	if !decodeBody(w, r, &patch) {
		return
	}

	if err := a.engine.UpdatePage(id, patch); err != nil {
		a.respondEditError(w, err)
		return
	}
	page := a.engine.Session().Page(id)
	if page == nil {
		respondError(w, http.StatusNotFound, "Page not found")
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (a *App) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	id, ok := pageID(w, r)
	if !ok {
		return
	}
	if err := a.engine.DeletePage(r.Context(), id); err != nil {
		if errors.Is(err, reconcile.ErrPageNotLoaded) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		a.log.Warn().Err(err).Msg("failed to follow page after delete")
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (a *App) handleSelectPage(w http.ResponseWriter, r *http.Request) {
	id, ok := pageID(w, r)
	if !ok {
		return
	}
	page := a.engine.Session().Page(id)
	if page == nil {
		respondError(w, http.StatusNotFound, "Page not found")
		return
	}
	if err := a.engine.SelectPage(r.Context(), id); err != nil {
		a.log.Warn().Err(err).Str("page", id.String()).Msg("failed to follow selected page")
	}
	respondJSON(w, http.StatusOK, page)
}

// Block handlers

func (a *App) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	id, ok := pageID(w, r)
	if !ok {
		return
	}
	page := a.engine.Session().Page(id)
	if page == nil {
		respondError(w, http.StatusNotFound, "Page not found")
		return
	}
	respondJSON(w, http.StatusOK, page.Blocks)
}

func (a *App) handleAddBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := pageID(w, r)
	if !ok {
		return
	}
	var req client.CreateBlockRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	block, err := a.engine.AddBlock(id, req.Type)
	if err != nil {
		a.respondEditError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, block)
}

func (a *App) handleUpdateBlock(w http.ResponseWriter, r *http.Request) {
	pid, bid, ok := blockID(w, r)
	if !ok {
		return
	}
	var patch models.BlockPatch
	if !decodeBody(w, r, &patch) {
		return
	}

	if err := a.engine.UpdateBlock(pid, bid, patch); err != nil {
		a.respondEditError(w, err)
		return
	}
	a.respondBlock(w, pid, bid)
}

func (a *App) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	pid, bid, ok := blockID(w, r)
	if !ok {
		return
	}
	if err := a.engine.DeleteBlock(pid, bid); err != nil {
		a.respondEditError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (a *App) handleToggleCheckbox(w http.ResponseWriter, r *http.Request) {
	pid, bid, ok := blockID(w, r)
	if !ok {
		return
	}
	checked, err := a.engine.ToggleCheckbox(pid, bid)
	if err != nil {
		a.respondEditError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, client.ToggleResponse{Checked: checked})
}

func (a *App) handleReorderBlocks(w http.ResponseWriter, r *http.Request) {
	id, ok := pageID(w, r)
	if !ok {
		return
	}
	var req client.ReorderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := a.engine.ReorderBlocks(id, req.BlockIDs)
	if err != nil {
		a.respondEditError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, client.BlockOrderResponse{BlockIDs: order})
}

func (a *App) handleMoveBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := pageID(w, r)
	if !ok {
		return
	}
	var req client.MoveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := a.engine.MoveBlock(id, req.Source, req.Target)
	if err != nil {
		a.respondEditError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, client.BlockOrderResponse{BlockIDs: order})
}

func (a *App) respondBlock(w http.ResponseWriter, pid models.PageID, bid models.BlockID) {
	page := a.engine.Session().Page(pid)
	if page == nil {
		respondError(w, http.StatusNotFound, "Page not found")
		return
	}
	block, _ := page.Block(bid)
	if block == nil {
		respondError(w, http.StatusNotFound, "Block not found")
		return
	}
	respondJSON(w, http.StatusOK, block)
}

// Session handlers

func (a *App) handleState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.engine.Session().State())
}

func (a *App) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	ws := a.engine.Session().State().Workspace
	if ws == nil {
		respondError(w, http.StatusNotFound, "Workspace not loaded")
		return
	}
	respondJSON(w, http.StatusOK, ws)
}

func (a *App) handleSidebar(w http.ResponseWriter, r *http.Request) {
	var req client.SidebarRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	sess := a.engine.Session()
	if req.Open == nil {
		a.engine.ToggleSidebar()
	} else {
		sess.SetSidebarOpen(*req.Open)
	}
	respondJSON(w, http.StatusOK, client.SidebarResponse{SidebarOpen: sess.State().SidebarOpen})
}

func (a *App) handleBlockTypes(w http.ResponseWriter, r *http.Request) {
	types := models.BlockTypes()
	infos := make([]client.BlockTypeInfo, len(types))
	for i, t := range types {
		infos[i] = client.BlockTypeInfo{Type: t, Label: t.Label()}
	}
	respondJSON(w, http.StatusOK, infos)
}

// Admin handlers

func (a *App) handleGetReadOnly(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, client.ReadOnlyMode{ReadOnly: a.IsReadOnly()})
}

func (a *App) handleSetReadOnly(w http.ResponseWriter, r *http.Request) {
	var req client.ReadOnlyMode
	if !decodeBody(w, r, &req) {
		return
	}
	a.SetReadOnly(req.ReadOnly)
	respondJSON(w, http.StatusOK, client.ReadOnlyMode{ReadOnly: a.IsReadOnly()})
}

// writable rejects the request while the app is read-only.
func (a *App) writable(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.IsReadOnly() {
			respondError(w, http.StatusForbidden, store.ErrReadOnly.Error())
			return
		}
		next(w, r)
	}
}

func (a *App) respondEditError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reconcile.ErrPageNotLoaded), errors.Is(err, reconcile.ErrBlockNotLoaded):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidBlockType):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrReadOnly):
		respondError(w, http.StatusForbidden, err.Error())
	default:
		a.log.Error().Err(err).Msg("edit failed")
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func pageID(w http.ResponseWriter, r *http.Request) (models.PageID, bool) {
	id, err := models.ParsePageID(mux.Vars(r)["pageId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return models.PageID{}, false
	}
	return id, true
}

func blockID(w http.ResponseWriter, r *http.Request) (models.PageID, models.BlockID, bool) {
	pid, ok := pageID(w, r)
	if !ok {
		return pid, models.BlockID{}, false
	}
	bid, err := models.ParseBlockID(mux.Vars(r)["blockId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid block ID")
		return pid, models.BlockID{}, false
	}
	return pid, bid, true
}

// decodeBody reads the JSON request body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

// respondJSON writes payload as JSON with the given status. A nil payload
// sends headers only.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

// respondError sends {"error": message}.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, client.ErrorResponse{Error: message})
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, client.HealthResponse{
		Status:   "healthy",
		Remote:   a.remoteName(),
		Policy:   a.engine.Policy().String(),
		ReadOnly: a.IsReadOnly(),
		Time:     time.Now().Unix(),
	})
}
