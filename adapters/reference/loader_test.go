package reference

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vbcaudit/domain/refdata"
)

func writeJSON(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const contractJSON = `{
  "contracts": [
    {
      "contract_id": "MSK-2024-001",
      "contract_name": "Orthopedic Partners of Massachusetts",
      "specialty": "MSK",
      "contract_type": "Bundled Payment",
      "lob": "Medicare Advantage",
      "sharing_rate_savings": 0.5,
      "quality_gate_minimum": 70,
      "attributed_members": 6200,
      "member_months": 74400
    },
    {
      "contract_id": "ONC-2024-001",
      "contract_name": "Commonwealth Cancer Alliance",
      "specialty": "Oncology",
      "contract_type": "Total Cost of Care",
      "lob": "Medicare Advantage",
      "pathway_adherence_target": 0.8,
      "novel_therapy_carveout": true,
      "novel_therapy_lookback_months": 18
    }
  ]
}`

func TestLoadContracts(t *testing.T) {
	path := writeJSON(t, "contract_metadata.json", contractJSON)

	contracts, err := LoadContracts(path)
	require.NoError(t, err)
	require.Len(t, contracts, 2)

	assert.Equal(t, "MSK-2024-001", contracts[0].ID)
	assert.Equal(t, refdata.SpecialtyMSK, contracts[0].Specialty)
	assert.Equal(t, 6200.0, contracts[0].AttributedMembers)
	assert.Equal(t, 0.8, contracts[1].PathwayAdherenceTarget)
	assert.True(t, contracts[1].NovelTherapyCarveout)
}

func TestLoadContractsRejectsUnknownSpecialty(t *testing.T) {
	path := writeJSON(t, "contract_metadata.json",
		`{"contracts":[{"contract_id":"C-1","specialty":"Cardiology"}]}`)
	_, err := LoadContracts(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown specialty")
}

func TestLoadContractsRejectsEmptyID(t *testing.T) {
	path := writeJSON(t, "contract_metadata.json",
		`{"contracts":[{"specialty":"MSK"}]}`)
	_, err := LoadContracts(path)
	require.Error(t, err)
}

func TestLoadContractsRejectsEmptyFile(t *testing.T) {
	path := writeJSON(t, "contract_metadata.json", `{"contracts":[]}`)
	_, err := LoadContracts(path)
	require.Error(t, err)
}

func TestLoadContractsMissingFile(t *testing.T) {
	_, err := LoadContracts(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestFindContract(t *testing.T) {
	contracts := []refdata.Contract{{ID: "MSK-2024-001"}, {ID: "ONC-2024-001"}}

	c, err := FindContract(contracts, "ONC-2024-001")
	require.NoError(t, err)
	assert.Equal(t, "ONC-2024-001", c.ID)

	_, err = FindContract(contracts, "MSK-2099-001")
	require.Error(t, err)
}

const rangesJSON = `{
  "msk": {
    "episode_cost_ranges": {
      "TKR": {"min": 28000, "max": 42000, "expected": 34000, "unit": "currency"}
    },
    "quality_targets": {
      "readmit_90day": {"target": 0.05, "max_acceptable": 0.08, "unit": "proportion"}
    },
    "incidence_rates_ma_per_1000": {
      "TKR": {"min": 6, "max": 12, "expected": 9, "unit": "rate_per_1000"}
    }
  },
  "oncology": {
    "episode_cost_ranges": {
      "breast_early": {"min": 45000, "max": 85000, "expected": 62000, "unit": "currency"}
    },
    "pathway_cost_benchmarks": {"lung_nsclc_1L": 107000}
  }
}`

func TestLoadRanges(t *testing.T) {
	path := writeJSON(t, "reference_ranges.json", rangesJSON)

	ranges, err := LoadRanges(path)
	require.NoError(t, err)

	msk, ok := RangesFor(ranges, refdata.SpecialtyMSK)
	require.True(t, ok)
	tkr := msk.EpisodeCost["TKR"]
	assert.Equal(t, 28000.0, *tkr.Min)
	assert.Equal(t, 34000.0, *tkr.Expected)
	assert.Equal(t, refdata.UnitCurrency, tkr.Unit)
	assert.Nil(t, msk.QualityTargets["readmit_90day"].Min)

	onc, ok := RangesFor(ranges, refdata.SpecialtyOncology)
	require.True(t, ok)
	assert.Equal(t, 107000.0, onc.PathwayCost["lung_nsclc_1L"])

	_, ok = RangesFor(ranges, "Cardiology")
	assert.False(t, ok)
}

func TestLoadRangesRejectsInvertedBounds(t *testing.T) {
	path := writeJSON(t, "reference_ranges.json",
		`{"msk":{"episode_cost_ranges":{"TKR":{"min":42000,"max":28000}}}}`)
	_, err := LoadRanges(path)
	require.Error(t, err)
}

func TestLoadRangesRejectsMalformedJSON(t *testing.T) {
	path := writeJSON(t, "reference_ranges.json", `{"msk": [1,2,3]}`)
	_, err := LoadRanges(path)
	require.Error(t, err)
}
