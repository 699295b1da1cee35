package languages

// Language describes one language as known to the engine.
type Language struct {
	Tag  string `yaml:"tag"`
	Name string `yaml:"name"`
	Code string `yaml:"code"`
}

// English is the hub language of the built-in table.
var English = Language{Tag: "en", Name: "English", Code: "eng_Latn"}

// nllbLanguages are the spoke languages served by default, with their
// FLORES-200 codes as expected by NLLB-200 tokenizers.
var nllbLanguages = []Language{
	{Tag: "ar", Name: "Arabic", Code: "arb_Arab"},
	{Tag: "cs", Name: "Czech", Code: "ces_Latn"},
	{Tag: "da", Name: "Danish", Code: "dan_Latn"},
	{Tag: "de", Name: "German", Code: "deu_Latn"},
	{Tag: "es", Name: "Spanish", Code: "spa_Latn"},
	{Tag: "fi", Name: "Finnish", Code: "fin_Latn"},
	{Tag: "fr", Name: "French", Code: "fra_Latn"},
	{Tag: "hr", Name: "Croatian", Code: "hrv_Latn"},
	{Tag: "hu", Name: "Hungarian", Code: "hun_Latn"},
	{Tag: "id", Name: "Indonesian", Code: "ind_Latn"},
	{Tag: "it", Name: "Italian", Code: "ita_Latn"},
	{Tag: "ja", Name: "Japanese", Code: "jpn_Jpan"},
	{Tag: "ko", Name: "Korean", Code: "kor_Hang"},
	{Tag: "ms", Name: "Malay", Code: "zsm_Latn"},
	{Tag: "nb", Name: "Norwegian Bokmal", Code: "nob_Latn"},
	{Tag: "nl", Name: "Dutch", Code: "nld_Latn"},
	{Tag: "no", Name: "Norwegian", Code: "nno_Latn"},
	{Tag: "pl", Name: "Polish", Code: "pol_Latn"},
	{Tag: "pt", Name: "Portuguese", Code: "por_Latn"},
	{Tag: "ro", Name: "Romanian", Code: "ron_Latn"},
	{Tag: "ru", Name: "Russian", Code: "rus_Cyrl"},
	{Tag: "sv", Name: "Swedish", Code: "swe_Latn"},
	{Tag: "th", Name: "Thai", Code: "tha_Thai"},
	{Tag: "tr", Name: "Turkish", Code: "tur_Latn"},
	{Tag: "uk", Name: "Ukrainian", Code: "ukr_Cyrl"},
	{Tag: "vi", Name: "Vietnamese", Code: "vie_Latn"},
	{Tag: "zh", Name: "Chinese", Code: "zho_Hans"},
}

// DefaultDefinitions returns the built-in table: every spoke language to and
// from English. All hub-to-spoke directions come first, then the reverse ones.
func DefaultDefinitions() []Definition {
	return HubDefinitions(English, nllbLanguages)
}

// HubDefinitions expands a hub-and-spoke table into directed definitions.
func HubDefinitions(hub Language, spokes []Language) []Definition {
	defs := make([]Definition, 0, 2*len(spokes))
	for _, l := range spokes {
		defs = append(defs, direction(hub, l))
	}
	for _, l := range spokes {
		defs = append(defs, direction(l, hub))
	}
	return defs
}

// NewDefault builds the registry from DefaultDefinitions.
func NewDefault() *Registry {
	r, err := New(DefaultDefinitions())
	if err != nil {
		// the built-in table is static; a failure here is a programming error
		panic(err)
	}
	return r
}

func direction(from, to Language) Definition {
	return Definition{
		SourceTag:  from.Tag,
		TargetTag:  to.Tag,
		SourceName: from.Name,
		TargetName: to.Name,
		SourceCode: from.Code,
		TargetCode: to.Code,
	}
}
