package httpapi

// Fixed user-facing messages. Handlers never leak internal error
// detail to clients.
const (
	msgNoQuestion     = "No question provided in request body."
	msgUnavailable    = "The answering service is unavailable. Please try again later."
	msgGenerateFailed = "Sorry, an answer could not be generated at this time."

	msgNoFile        = "No PDF file provided."
	msgEmptyFilename = "Empty PDF filename."
	msgNotPDF        = "The file must be a PDF."
	msgTooLarge      = "The PDF file is too large."
	msgUnreadablePDF = "The file could not be parsed as a PDF."
	msgNoText        = "The PDF contains no extractable text."
	msgAlreadyDone   = "This document has already been processed."
	msgUploadOK      = "PDF processed and saved successfully."
	msgNotSaved      = "Failed to save the PDF to the database."
	msgNotEmbedded   = "PDF saved, but embedding into the vector index failed."
)

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

type uploadResponse struct {
	Message string `json:"message"`
	NewsID  string `json:"news_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string `json:"status"`
}
