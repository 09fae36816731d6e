package ports

// ISealer encrypts personal data before it reaches storage. Seal and
// Open are inverses; Open of a value Seal never produced is an error.
type ISealer interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}
