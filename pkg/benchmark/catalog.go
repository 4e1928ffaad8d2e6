package benchmark

import "github.com/oceanbase/plmteb-go/pkg/core"

var polish = []string{"pol"}

func def(name string, t core.TaskType) Definition {
	return Definition{Name: name, Type: t, Languages: polish, Dir: "mteb/" + name}
}

// DefaultDefinitions is the Polish task catalog in benchmark order.
func DefaultDefinitions() []Definition {
	return []Definition{
		def("CBD", core.TaskTypeClassification),
		def("PolEmo2.0-IN", core.TaskTypeClassification),
		def("PolEmo2.0-OUT", core.TaskTypeClassification),
		def("AllegroReviews", core.TaskTypeClassification),
		def("PAC", core.TaskTypeClassification),
		def("MassiveIntentClassification", core.TaskTypeClassification),
		def("MassiveScenarioClassification", core.TaskTypeClassification),
		def("8TagsClustering", core.TaskTypeClustering),
		def("SICK-E-PL", core.TaskTypePairClassification),
		def("PPC", core.TaskTypePairClassification),
		def("CDSC-E", core.TaskTypePairClassification),
		def("PSC", core.TaskTypePairClassification),
		def("SICK-R-PL", core.TaskTypeSTS),
		def("CDSC-R", core.TaskTypeSTS),
		def("STS22", core.TaskTypeSTS),
		def("ArguAna-PL", core.TaskTypeRetrieval),
		def("DBPedia-PL", core.TaskTypeRetrieval),
		def("FiQA-PL", core.TaskTypeRetrieval),
		def("HotpotQA-PL", core.TaskTypeRetrieval),
		def("MSMARCO-PL", core.TaskTypeRetrieval),
		def("NFCorpus-PL", core.TaskTypeRetrieval),
		def("NQ-PL", core.TaskTypeRetrieval),
		def("Quora-PL", core.TaskTypeRetrieval),
		def("SCIDOCS-PL", core.TaskTypeRetrieval),
		def("SciFact-PL", core.TaskTypeRetrieval),
		def("TRECCOVID-PL", core.TaskTypeRetrieval),
	}
}

// DefaultCatalog builds the Polish catalog over dataDir.
func DefaultCatalog(dataDir string) (*Catalog, error) {
	return NewCatalog(dataDir, DefaultDefinitions()...)
}
