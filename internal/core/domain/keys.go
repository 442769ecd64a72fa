package domain

// Well-known payload keys contributed by the stock stages. Downstream
// consumers read the result artifact by these names, so they are part of the
// pipeline's observable contract.
const (
	KeyTitle      = "title"
	KeySource     = "source"
	KeyMimeType   = "mime_type"
	KeyText       = "text"
	KeyAnalysis   = "analysis"
	KeyResultPath = "result_path"
)
