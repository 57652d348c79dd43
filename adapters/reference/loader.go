// Package reference loads contract metadata and reference ranges from the
// JSON configuration files that accompany each reporting period.
package reference

import (
	"encoding/json"
	"os"

	"vbcaudit/domain/refdata"
	"vbcaudit/internal/errors"
)

// contractFile is the on-disk shape of contract_metadata.json.
type contractFile struct {
	Contracts []refdata.Contract `json:"contracts"`
}

// rangesFile is the on-disk shape of reference_ranges.json, keyed by
// lowercase specialty ("msk", "oncology").
type rangesFile map[string]refdata.RangeSet

// LoadContracts reads and validates contract metadata.
func LoadContracts(path string) ([]refdata.Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ConfigInvalid("contract metadata unreadable"), "read %s: %v", path, err)
	}
	var file contractFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(errors.ConfigInvalid("contract metadata is not valid JSON"), "parse %s: %v", path, err)
	}
	if len(file.Contracts) == 0 {
		return nil, errors.ConfigInvalid("contract metadata contains no contracts")
	}
	for _, c := range file.Contracts {
		if c.ID == "" {
			return nil, errors.ConfigInvalid("contract with empty contract_id")
		}
		if c.Specialty != refdata.SpecialtyMSK && c.Specialty != refdata.SpecialtyOncology {
			return nil, errors.ConfigInvalid("contract " + c.ID + " has unknown specialty " + c.Specialty)
		}
	}
	return file.Contracts, nil
}

// FindContract returns the contract with the given ID.
func FindContract(contracts []refdata.Contract, id string) (refdata.Contract, error) {
	for _, c := range contracts {
		if c.ID == id {
			return c, nil
		}
	}
	return refdata.Contract{}, errors.ReferenceError("contract " + id + " not found")
}

// LoadRanges reads and validates the per-specialty reference ranges.
func LoadRanges(path string) (map[string]refdata.RangeSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ConfigInvalid("reference ranges unreadable"), "read %s: %v", path, err)
	}
	var file rangesFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(errors.ConfigInvalid("reference ranges are not valid JSON"), "parse %s: %v", path, err)
	}
	for specialty, rs := range file {
		if err := rs.Validate(); err != nil {
			return nil, errors.Wrapf(errors.ReferenceError("reference range invariant violated"), "%s: %v", specialty, err)
		}
	}
	return file, nil
}

// RangesFor returns the RangeSet for a contract's specialty. Reference
// files key specialties in lowercase.
func RangesFor(ranges map[string]refdata.RangeSet, specialty string) (refdata.RangeSet, bool) {
	switch specialty {
	case refdata.SpecialtyMSK:
		rs, ok := ranges["msk"]
		return rs, ok
	case refdata.SpecialtyOncology:
		rs, ok := ranges["oncology"]
		return rs, ok
	}
	return refdata.RangeSet{}, false
}
