package config

// validTonemapAlgorithms lists the zscale/tonemap filter algorithms the
// encoder accepts. Mirrors ffmpeg's zscale tonemap parameter values.
var validTonemapAlgorithms = map[string]bool{
	"hable":   true,
	"bt2390":  true,
	"reinhard": true,
	"mobius":  true,
	"clip":    true,
	"linear":  true,
	"gamma":   true,
}

// isValidTonemapAlgorithm reports whether name is a recognized tonemap
// algorithm.
func isValidTonemapAlgorithm(name string) bool {
	return validTonemapAlgorithms[name]
}
