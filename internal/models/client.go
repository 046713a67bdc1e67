package models

// Client is one tenant of the platform. SMTP and IMAP passwords are stored
// encrypted; decryption happens only at the moment a connection is opened.
type Client struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	FromAddress           string `json:"from_address"`
	Signature             string `json:"signature,omitempty"`
	BaseURL               string `json:"base_url,omitempty"`
	APIToken              string `json:"-"`
	SMTPHost              string `json:"smtp_host"`
	SMTPPort              int    `json:"smtp_port"`
	SMTPUsername          string `json:"smtp_username"`
	EncryptedSMTPPassword []byte `json:"-"`
	IMAPHost              string `json:"imap_host"`
	IMAPPort              int    `json:"imap_port"`
	IMAPUsername          string `json:"imap_username"`
	EncryptedIMAPPassword []byte `json:"-"`
}
