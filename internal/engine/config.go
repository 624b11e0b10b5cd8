package engine

type Config struct {
	Kind           Kind   `yaml:"kind" env:"ENGINE_KIND" env-default:"native" validate:"oneof=native container"`
	FfmpegBinPath  string `yaml:"ffmpeg_bin_path" env:"FFMPEG_BIN_PATH" env-default:"/usr/bin/ffmpeg"`
	FfprobeBinPath string `yaml:"ffprobe_bin_path" env:"FFPROBE_BIN_PATH" env-default:"/usr/bin/ffprobe"`

	// WorkDir is the directory in which engine workspaces are created. If
	// empty, the system temporary directory is used.
	WorkDir string `yaml:"work_dir" env:"ENGINE_WORK_DIR"`

	// ContainerImage is the Docker image used by the container engine. The
	// image must provide FFmpeg at ContainerBinPath.
	ContainerImage   string `yaml:"container_image" env:"ENGINE_CONTAINER_IMAGE" env-default:"linuxserver/ffmpeg:latest"`
	ContainerBinPath string `yaml:"container_bin_path" env:"ENGINE_CONTAINER_BIN_PATH" env-default:"ffmpeg"`

	// StderrTail is the number of trailing stderr lines included in
	// invocation errors.
	StderrTail int `yaml:"stderr_tail" env:"ENGINE_STDERR_TAIL" env-default:"20" validate:"gte=0"`
}
