package config

type UploadConfig interface {
	GetMaxUploadSize() int64
	GetAllowedExtensions() []string
}

type Upload struct{}

var _ UploadConfig = Upload{}

func (Upload) GetMaxUploadSize() int64 {
	return int64(GetEnvInt("MAX_UPLOAD_SIZE", 10*1024*1024)) // 10MB
}

func (Upload) GetAllowedExtensions() []string {
	return []string{".xlsx", ".xls"}
}
