package gateway

import (
	"net/http"
	"strings"

	"github.com/brandguard/brandguard/core/fault"
	"github.com/brandguard/brandguard/core/infra/schema"
	"github.com/brandguard/brandguard/core/rules"
	"github.com/brandguard/brandguard/core/store"
)

// decodeRuleSet parses a JSON or YAML body and validates it as a V2 rule set.
func decodeRuleSet(w http.ResponseWriter, r *http.Request) (*rules.RuleSet, error) {
	value, err := parseRequestBody(w, r)
	if err != nil {
		return nil, err
	}
	return rules.Validate(value)
}

// decodeMigratedRuleSet parses a V1 body and upgrades it to a validated V2 set.
func decodeMigratedRuleSet(w http.ResponseWriter, r *http.Request) (*rules.RuleSet, error) {
	value, err := parseRequestBody(w, r)
	if err != nil {
		return nil, err
	}
	v1, err := rules.DecodeV1(value)
	if err != nil {
		return nil, fault.Validation(schema.RootPath, err.Error())
	}
	return rules.MigrateAndValidate(*v1)
}

func parseRequestBody(w http.ResponseWriter, r *http.Request) (any, error) {
	raw, err := readBody(w, r, maxBodyBytes)
	if err != nil {
		return nil, err
	}
	return rules.ParseBody(raw, r.Header.Get("Content-Type"))
}

func pathValue(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(r.PathValue(name))
	if v == "" {
		return "", fault.Validation(name, "must be a non-empty string")
	}
	return v, nil
}

func writeRuleSet(w http.ResponseWriter, r *http.Request, rs *rules.RuleSet) {
	data, err := rules.Canonical(rs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRawJSON(w, http.StatusOK, data)
}

func (s *server) handleValidateRules(w http.ResponseWriter, r *http.Request) {
	rs, err := decodeRuleSet(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRuleSet(w, r, rs)
}

func (s *server) handleMigrateRules(w http.ResponseWriter, r *http.Request) {
	rs, err := decodeMigratedRuleSet(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRuleSet(w, r, rs)
}

func (s *server) handleListBrandRules(w http.ResponseWriter, r *http.Request) {
	brandID, err := pathValue(r, "brandId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, err := s.store.ListByBrand(r.Context(), brandID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []store.RuleRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": records})
}

func (s *server) handleCreateBrandRules(w http.ResponseWriter, r *http.Request) {
	s.saveBrandRules(w, r, decodeRuleSet)
}

func (s *server) handleMigrateBrandRules(w http.ResponseWriter, r *http.Request) {
	s.saveBrandRules(w, r, decodeMigratedRuleSet)
}

func (s *server) saveBrandRules(w http.ResponseWriter, r *http.Request, decode func(http.ResponseWriter, *http.Request) (*rules.RuleSet, error)) {
	brandID, err := pathValue(r, "brandId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rs, err := decode(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.store.Save(r.Context(), brandID, rs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/rules/"+rec.ID)
	writeJSON(w, http.StatusCreated, rec)
}

func (s *server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathValue(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.store.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, r, fault.NotFound("rule set", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleReplaceRule swaps the whole rule set; concurrent writers race and
// the last one wins.
func (s *server) handleReplaceRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathValue(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rs, err := decodeRuleSet(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.store.Replace(r.Context(), id, rs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathValue(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.DeleteByID(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
