package api

import (
	"net/http"
	"strconv"

	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/scripting"
)

type parentsView struct {
	First  uint64 `json:"first"`
	Second uint64 `json:"second"`
}

type kittyView struct {
	ID      uint64           `json:"id"`
	Genome  string           `json:"genome"`
	Owner   string           `json:"owner"`
	Parents *parentsView     `json:"parents,omitempty"`
	Deposit uint64           `json:"deposit"`
	Traits  scripting.Traits `json:"traits"`
}

type journalView struct {
	Seq     uint64 `json:"seq"`
	Op      string `json:"op"`
	Account string `json:"account"`
	Kitty   uint64 `json:"kitty"`
	Amount  uint64 `json:"amount"`
}

func (h *Handler) handleKitty(w http.ResponseWriter, r *http.Request) {
	id, err := kittyParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	k, err := h.registry.Kitty(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	v := kittyView{
		ID:      uint64(k.ID),
		Genome:  k.Genome.String(),
		Owner:   k.Owner.String(),
		Deposit: uint64(k.Deposit),
		Traits:  h.traits.DescribeGenome(k.Genome),
	}
	if k.Parents != nil {
		v.Parents = &parentsView{First: uint64(k.Parents.First), Second: uint64(k.Parents.Second)}
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleChildren(w http.ResponseWriter, r *http.Request) {
	id, err := kittyParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ids, err := h.registry.Children(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kitty": uint64(id), "children": idList(ids)})
}

func (h *Handler) handlePartners(w http.ResponseWriter, r *http.Request) {
	id, err := kittyParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ids, err := h.registry.Partners(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kitty": uint64(id), "partners": idList(ids)})
}

func (h *Handler) handleOwned(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ids, err := h.registry.OwnedBy(r.Context(), account)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": account.String(), "kitties": idList(ids)})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	bal, err := h.registry.Balance(r.Context(), account)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account":  account.String(),
		"free":     uint64(bal.Free),
		"reserved": uint64(bal.Reserved),
	})
}

// handleJournal pages the escrow journal: ?from=<seq>&limit=<n>.
func (h *Handler) handleJournal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var from uint64
	if s := q.Get("from"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			h.writeError(w, r, errBadRequest)
			return
		}
		from = v
	}
	limit := defaultJournalLimit
	if s := q.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			h.writeError(w, r, errBadRequest)
			return
		}
		limit = min(v, maxJournalLimit)
	}

	entries, err := h.registry.Journal(r.Context(), from, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]journalView, 0, len(entries))
	for _, e := range entries {
		out = append(out, journalView{
			Seq:     e.Seq,
			Op:      e.Op.String(),
			Account: e.Account.String(),
			Kitty:   uint64(e.Kitty),
			Amount:  uint64(e.Amount),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func idList(ids []kitty.ID) []uint64 {
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		out = append(out, uint64(id))
	}
	return out
}
