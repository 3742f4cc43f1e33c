package ledger

import "strings"

// HydrolysisCounter accumulates an energy cost paid by hydrolysing Carrier
// into Product plus inorganic phosphate.
type HydrolysisCounter struct {
	Counter string `yaml:"counter"`
	Carrier string `yaml:"carrier"`
	Product string `yaml:"product"`
}

// IncorporationCounter accumulates nucleotide incorporation drawn from
// Monomer, releasing pyrophosphate.
type IncorporationCounter struct {
	Counter string `yaml:"counter"`
	Monomer string `yaml:"monomer"`
}

// Accounts names every counter and shared pool the ledger reconciles.
type Accounts struct {
	Phosphate     string                 `yaml:"phosphate"`
	Pyrophosphate string                 `yaml:"pyrophosphate"`
	Hydrolysis    []HydrolysisCounter    `yaml:"hydrolysis"`
	Incorporation []IncorporationCounter `yaml:"incorporation"`
}

// DefaultAccounts is the Syn3A bookkeeping: translation is paid in GTP,
// every other hydrolysis cost in ATP, and each RNA class draws on its own
// NTP counters.
func DefaultAccounts() Accounts {
	a := Accounts{
		Phosphate:     "M_pi_c",
		Pyrophosphate: "M_ppi_c",
		Hydrolysis: []HydrolysisCounter{
			{Counter: "ATP_translat", Carrier: "M_gtp_c", Product: "M_gdp_c"},
			{Counter: "ATP_trsc", Carrier: "M_atp_c", Product: "M_adp_c"},
			{Counter: "ATP_mRNAdeg", Carrier: "M_atp_c", Product: "M_adp_c"},
			{Counter: "ATP_DNArep", Carrier: "M_atp_c", Product: "M_adp_c"},
			{Counter: "ATP_transloc", Carrier: "M_atp_c", Product: "M_adp_c"},
		},
	}
	for _, rna := range []string{"mRNA", "tRNA", "rRNA"} {
		for _, ntp := range []string{"ATP", "CTP", "UTP", "GTP"} {
			a.Incorporation = append(a.Incorporation, IncorporationCounter{
				Counter: ntp + "_" + rna,
				Monomer: "M_" + strings.ToLower(ntp) + "_c",
			})
		}
	}
	return a
}

// Names returns every species the accounts reference.
func (a Accounts) Names() []string {
	names := []string{a.Phosphate, a.Pyrophosphate}
	for _, h := range a.Hydrolysis {
		names = append(names, h.Counter, h.Carrier, h.Product)
	}
	for _, c := range a.Incorporation {
		names = append(names, c.Counter, c.Monomer)
	}
	return names
}
