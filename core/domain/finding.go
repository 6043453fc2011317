package domain

// DocumentType is the detected type of an attached document.
type DocumentType string

const (
	DocTypeDrawing          DocumentType = "drawing"
	DocTypeInvoice          DocumentType = "invoice"
	DocTypeCertificate      DocumentType = "certificate"
	DocTypeOffer            DocumentType = "offer"
	DocTypePurchaseOrder    DocumentType = "purchase_order"
	DocTypeWeldingProcedure DocumentType = "welding_procedure"
	DocTypeInspectionReport DocumentType = "inspection_report"
	DocTypeOther            DocumentType = "other"
)

// CADFields holds structured metadata extracted from CAD files.
type CADFields struct {
	ProductName     string
	Material        string
	ProtocolVersion string // AP203 / AP214 for STEP files
	Layers          []string
	Blocks          []string
}

// AttachmentFinding is the per-attachment extraction result. It is
// produced exactly once per attachment and never mutated afterwards.
type AttachmentFinding struct {
	Filename       string
	Text           string
	Confidence     float64 // extraction confidence, 0 when extraction failed
	DocType        DocumentType
	TypeConfidence float64 // detector tier confidence
	CAD            *CADFields
	Note           string // e.g. "binary DWG, conversion required"
}
