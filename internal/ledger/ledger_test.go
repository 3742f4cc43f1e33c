package ledger

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/cmeode/internal/species"
)

func syn3aState(t *testing.T, counts map[string]int64) (*Ledger, *species.State) {
	t.Helper()

	a := DefaultAccounts()
	tbl := species.NewTable(a.Names())
	full := make(map[string]int64)
	for _, n := range tbl.Names() {
		full[n] = 0
	}
	for k, v := range counts {
		full[k] = v
	}

	s, err := species.FromMap(tbl, full)
	require.NoError(t, err)
	l, err := New(tbl, a)
	require.NoError(t, err)
	return l, s
}

func count(t *testing.T, s *species.State, name string) int64 {
	t.Helper()
	v, err := s.Count(name)
	require.NoError(t, err)
	return v
}

func TestHydrolysisShortfall(t *testing.T) {
	l, s := syn3aState(t, map[string]int64{
		"M_atp_c":  1000,
		"ATP_trsc": 1500,
		"M_adp_c":  10,
		"M_pi_c":   20,
	})

	r := l.Reconcile(s)

	assert.Equal(t, int64(0), count(t, s, "M_atp_c"))
	assert.Equal(t, int64(500), count(t, s, "ATP_trsc"))
	assert.Equal(t, int64(1010), count(t, s, "M_adp_c"))
	assert.Equal(t, int64(1020), count(t, s, "M_pi_c"))
	assert.Equal(t, 1, r.Shortfalls())
}

func TestHydrolysisSurplus(t *testing.T) {
	l, s := syn3aState(t, map[string]int64{
		"M_atp_c":  1000,
		"ATP_trsc": 300,
	})

	l.Reconcile(s)

	assert.Equal(t, int64(700), count(t, s, "M_atp_c"))
	assert.Equal(t, int64(0), count(t, s, "ATP_trsc"))
	assert.Equal(t, int64(300), count(t, s, "M_adp_c"))
	assert.Equal(t, int64(300), count(t, s, "M_pi_c"))
}

func TestHydrolysisTieTakesFullTransfer(t *testing.T) {
	l, s := syn3aState(t, map[string]int64{
		"M_gtp_c":      800,
		"ATP_translat": 800,
	})

	r := l.Reconcile(s)

	assert.Equal(t, int64(0), count(t, s, "ATP_translat"), "counter must be zeroed on a tie")
	assert.Equal(t, int64(0), count(t, s, "M_gtp_c"), "carrier must be fully transferred on a tie")
	assert.Equal(t, int64(800), count(t, s, "M_gdp_c"))
	assert.Equal(t, int64(800), count(t, s, "M_pi_c"))
	assert.Equal(t, 0, r.Shortfalls())
}

func TestTranslationPaidInGTP(t *testing.T) {
	l, s := syn3aState(t, map[string]int64{
		"M_gtp_c":      50,
		"M_atp_c":      5000,
		"ATP_translat": 80,
	})

	l.Reconcile(s)

	assert.Equal(t, int64(0), count(t, s, "M_gtp_c"))
	assert.Equal(t, int64(30), count(t, s, "ATP_translat"))
	assert.Equal(t, int64(5000), count(t, s, "M_atp_c"), "ATP must not pay for translation")
}

func TestIncorporationSharedMonomer(t *testing.T) {
	l, s := syn3aState(t, map[string]int64{
		"M_utp_c":  100,
		"UTP_mRNA": 60,
		"UTP_tRNA": 60,
		"UTP_rRNA": 10,
		"M_ppi_c":  5,
	})

	r := l.Reconcile(s)

	assert.Equal(t, int64(0), count(t, s, "M_utp_c"))
	assert.Equal(t, int64(0), count(t, s, "UTP_mRNA"))
	assert.Equal(t, int64(20), count(t, s, "UTP_tRNA"))
	assert.Equal(t, int64(10), count(t, s, "UTP_rRNA"))
	assert.Equal(t, int64(105), count(t, s, "M_ppi_c"))
	assert.Equal(t, 2, r.Shortfalls())
}

func TestIncorporationTie(t *testing.T) {
	l, s := syn3aState(t, map[string]int64{
		"M_ctp_c":  42,
		"CTP_rRNA": 42,
	})

	l.Reconcile(s)

	assert.Equal(t, int64(0), count(t, s, "CTP_rRNA"))
	assert.Equal(t, int64(0), count(t, s, "M_ctp_c"))
	assert.Equal(t, int64(42), count(t, s, "M_ppi_c"))
}

func TestReconcileConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := DefaultAccounts()

	for trial := 0; trial < 200; trial++ {
		counts := make(map[string]int64)
		for _, n := range a.Names() {
			counts[n] = rng.Int63n(2000) - 100
		}
		l, s := syn3aState(t, counts)

		l.Reconcile(s)

		for _, n := range a.Names() {
			require.GreaterOrEqualf(t, count(t, s, n), int64(0), "trial %d: %s went negative", trial, n)
		}
	}
}

func TestNewMissingSpecies(t *testing.T) {
	tbl := species.NewTable([]string{"M_pi_c", "M_ppi_c"})
	_, err := New(tbl, DefaultAccounts())
	require.ErrorIs(t, err, species.ErrMissingSpecies)
}
