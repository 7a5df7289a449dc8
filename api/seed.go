/*
seed.go - Seed loading for demos and fixtures

PURPOSE:
  Populates the database from a YAML seed document (see factory/seed.go for
  the format). Used at startup via SEED_FILE and at runtime via the seed
  endpoint.

HOW SEEDING WORKS:
 1. Parse and validate the whole document via the factory
 2. Save each client
 3. Save each client's contracts
 4. Submit each payment through the payments service, so seeded payments
    pass exactly the validation and variance checks a UI submission would

USAGE VIA API:

	POST /api/seed
	Content-Type: application/yaml
	<seed document>

NOTE:
  Seeding is additive. Contracts are upserted; payments get fresh IDs, so
  loading the same file twice records its payments twice.

SEE ALSO:
  - factory/seed.go: Seed format and parser
  - factory/testdata/demo.yaml: Demo data
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/warp/fee-engine/factory"
	"github.com/warp/fee-engine/payments"
	"github.com/warp/fee-engine/store/sqlite"
)

// SeedResult counts what a seed load wrote.
type SeedResult struct {
	Clients   int `json:"clients"`
	Contracts int `json:"contracts"`
	Payments  int `json:"payments"`
}

// LoadSeed handles POST /api/seed.
func (h *Handler) LoadSeed(w http.ResponseWriter, r *http.Request) {
	seed, err := h.Factory.ParseSeed(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid seed document", err)
		return
	}

	res, err := h.ApplySeed(r.Context(), seed)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// LoadSeedFile parses and applies a seed file from disk.
func (h *Handler) LoadSeedFile(ctx context.Context, path string) (SeedResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return SeedResult{}, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	seed, err := h.Factory.ParseSeed(f)
	if err != nil {
		return SeedResult{}, err
	}
	return h.ApplySeed(ctx, seed)
}

// ApplySeed writes a parsed seed. It stops at the first failure; anything
// already written stays.
func (h *Handler) ApplySeed(ctx context.Context, seed *factory.Seed) (SeedResult, error) {
	var res SeedResult
	for _, client := range seed.Clients {
		name := client.Name
		if name == "" {
			name = string(client.ID)
		}
		if err := h.Store.SaveClient(ctx, sqlite.Client{ID: client.ID, Name: name}); err != nil {
			return res, err
		}
		res.Clients++

		for _, c := range client.Contracts {
			if err := h.Store.SaveContract(ctx, c); err != nil {
				return res, fmt.Errorf("contract %s: %w", c.ID, err)
			}
			res.Contracts++
		}

		for i, sp := range client.Payments {
			opts := payments.SubmitOptions{Confirmed: sp.Confirmed}
			if _, err := h.Service.Submit(ctx, sp.Draft, opts); err != nil {
				return res, fmt.Errorf("client %s payment %d: %w", client.ID, i, err)
			}
			res.Payments++
		}
	}

	h.Log.Info().
		Int("clients", res.Clients).
		Int("contracts", res.Contracts).
		Int("payments", res.Payments).
		Msg("seed loaded")
	return res, nil
}
