package option

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// Config upload server config
type Config struct {
	APIAddr             string
	DBType              string
	MysqlConnectionInfo string
	StorageType         string
	StoragePath         string
	S3Endpoint          string
	S3Region            string
	S3Bucket            string
	S3AccessKeyID       string
	S3SecretAccessKey   string
	JanitorInterval     time.Duration
}

// UploadServer upload server option
type UploadServer struct {
	Config
	LogLevel string
}

// NewUploadServer new upload server option
func NewUploadServer() *UploadServer {
	return &UploadServer{}
}

// AddFlags config
func (s *UploadServer) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&s.LogLevel, "log-level", "info", "the upload server log level")
	fs.StringVar(&s.APIAddr, "api-addr", ":8888", "the api server listen address")
	fs.StringVar(&s.DBType, "db-type", "mysql", "db type mysql or memory")
	fs.StringVar(&s.MysqlConnectionInfo, "mysql", "admin:admin@tcp(127.0.0.1:3306)/vaultbox", "mysql db connection info")
	fs.StringVar(&s.StorageType, "storage-type", "local", "chunk storage type local or s3")
	fs.StringVar(&s.StoragePath, "storage-path", "/data/vaultbox", "base dir for local chunk storage")
	fs.StringVar(&s.S3Endpoint, "s3-endpoint", "", "s3 endpoint for s3 storage type")
	fs.StringVar(&s.S3Region, "s3-region", "us-east-1", "s3 region")
	fs.StringVar(&s.S3Bucket, "s3-bucket", "vaultbox", "s3 bucket")
	fs.StringVar(&s.S3AccessKeyID, "s3-access-key", "", "s3 access key id")
	fs.StringVar(&s.S3SecretAccessKey, "s3-secret-key", "", "s3 secret access key")
	fs.DurationVar(&s.JanitorInterval, "janitor-interval", time.Hour, "how often to sweep expired upload sessions")
}

// SetLog set log level
func (s *UploadServer) SetLog() {
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		logrus.Errorf("failed to parse log level %s: %v", s.LogLevel, err)
		return
	}
	logrus.SetLevel(level)
}
