package slam

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the unified YAML configuration for a running SLAM instance,
// covering every option named across §4.4/§4.5/§4.6/§6: matcher thresholds,
// RANSAC/ICP/PnP tuning, association gates, keyframe decision thresholds,
// and the output/service options.
type Config struct {
	Matcher     MatcherConfigYAML     `yaml:"matcher"`
	Association AssociationConfigYAML `yaml:"association"`
	Tracker     TrackerConfigYAML     `yaml:"tracker"`
	Keyframe    KeyframeConfigYAML    `yaml:"keyframe"`
	Orchestrator OrchestratorConfigYAML `yaml:"orchestrator"`
	Output      OutputConfig          `yaml:"output"`
}

// MatcherConfigYAML mirrors feature_good_match_threshold / feature_min_good_match_size (§6).
type MatcherConfigYAML struct {
	RatioTestThreshold float64 `yaml:"ratio_test_threshold"`
	GoodMatchThreshold float64 `yaml:"feature_good_match_threshold"`
	MinGoodMatchSize   int     `yaml:"feature_min_good_match_size"`
}

// AssociationConfigYAML mirrors dir_threshold / dis_threshold (§6).
type AssociationConfigYAML struct {
	DirThresholdDeg float64 `yaml:"dir_threshold_deg"`
	DisThreshold    float64 `yaml:"dis_threshold"`
	DepthGate       float64 `yaml:"depth_gate"`
	DescriptorMax   float64 `yaml:"descriptor_max"`
}

// TrackerConfigYAML mirrors ransac_*/icp_*/pnp_* (§6).
type TrackerConfigYAML struct {
	RansacIterations         int     `yaml:"ransac_iterations"`
	RansacSampleSize         int     `yaml:"ransac_sample_size"`
	RansacMinInlier          int     `yaml:"ransac_min_inlier"`
	RansacInlierMaxMahalDist float64 `yaml:"ransac_inlier_max_mahal_distance"`

	ICPMaxDistance     float64 `yaml:"icp_max_distance"`
	ICPIterations      int     `yaml:"icp_iterations"`
	ICPTfEpsilon       float64 `yaml:"icp_tf_epsilon"`
	ICPScoreThreshold  float64 `yaml:"icp_score_threshold"`

	PnPMinInlier      int     `yaml:"pnp_min_inlier"`
	PnPIterations     int     `yaml:"pnp_iterations"`
	PnPReprojectError float64 `yaml:"pnp_repreject_error"`

	MaxTranslation float64 `yaml:"max_translation"`
	MaxRotationDeg float64 `yaml:"max_rotation_deg"`
}

// KeyframeConfigYAML mirrors rot_threshold / trans_threshold /
// new_landmark_threshold / dt_threshold (§4.5).
type KeyframeConfigYAML struct {
	RotThresholdDeg        float64       `yaml:"rot_threshold_deg"`
	TransThreshold         float64       `yaml:"trans_threshold"`
	NewLandmarkThreshold    int          `yaml:"new_landmark_threshold"`
	DtThreshold             time.Duration `yaml:"dt_threshold"`
}

// OrchestratorConfigYAML mirrors use_odom_tracking / force_odom and the
// bootstrap minimums (§4.7).
type OrchestratorConfigYAML struct {
	UseOdomTracking bool `yaml:"use_odom_tracking"`
	ForceOdom       bool `yaml:"force_odom"`
	MinBootstrapPlanes   int `yaml:"min_bootstrap_planes"`
	MinBootstrapKeypoints int `yaml:"min_bootstrap_keypoints"`
	WorkerPoolSize       int `yaml:"worker_pool_size"`
	SkipMessageModulo    int `yaml:"skip_message_modulo"`
}

// OutputConfig names the artifact destinations (§6): plane/keypoint
// landmark dumps, path file, runtime stats, DOT graph and GeoJSON export.
type OutputConfig struct {
	OutputDir string `yaml:"output_dir"`
	ResultDir string `yaml:"result_dir"`
}

// DefaultConfig returns every default named across §4.4-§4.7 and §6,
// bundled into one Config.
func DefaultConfig() Config {
	tc := DefaultTrackerConfig()
	mc := DefaultMatcherConfig()
	ac := DefaultAssociationConfig()

	return Config{
		Matcher: MatcherConfigYAML{
			RatioTestThreshold: mc.RatioTestThreshold,
			GoodMatchThreshold: mc.GoodMatchThreshold,
			MinGoodMatchSize:   mc.MinGoodMatchSize,
		},
		Association: AssociationConfigYAML{
			DirThresholdDeg: ac.DirThresholdDeg,
			DisThreshold:    ac.DisThreshold,
			DepthGate:       ac.DepthGate,
			DescriptorMax:   ac.DescriptorMax,
		},
		Tracker: TrackerConfigYAML{
			RansacIterations:         tc.RansacIterations,
			RansacSampleSize:         tc.RansacSampleSize,
			RansacMinInlier:          tc.RansacMinInlier,
			RansacInlierMaxMahalDist: tc.RansacInlierMaxMahalDist,
			ICPMaxDistance:           tc.ICP.MaxCorrespondDist,
			ICPIterations:            tc.ICP.MaxIterations,
			ICPTfEpsilon:             tc.ICP.ConvergenceThresh,
			ICPScoreThreshold:        tc.ICP.ScoreThreshold,
			PnPMinInlier:             tc.PnP.MinInlier,
			PnPIterations:            tc.PnP.Iterations,
			PnPReprojectError:        tc.PnP.ReprojectionError,
			MaxTranslation:           tc.MaxTranslation,
			MaxRotationDeg:           tc.MaxRotationDeg,
		},
		Keyframe: KeyframeConfigYAML{
			RotThresholdDeg:      10,
			TransThreshold:       0.2,
			NewLandmarkThreshold: 15,
			DtThreshold:          2 * time.Second,
		},
		Orchestrator: OrchestratorConfigYAML{
			UseOdomTracking:       true,
			ForceOdom:             false,
			MinBootstrapPlanes:    3,
			MinBootstrapKeypoints: 20,
			WorkerPoolSize:        6,
			SkipMessageModulo:     2,
		},
		Output: OutputConfig{
			OutputDir: "output",
			ResultDir: "result",
		},
	}
}

// ToTrackerConfig converts the YAML-loaded tuning fields into the runtime
// TrackerConfig the tracker/matcher/association code operates on.
func (c Config) ToTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Matcher: MatcherConfig{
			RatioTestThreshold: c.Matcher.RatioTestThreshold,
			GoodMatchThreshold: c.Matcher.GoodMatchThreshold,
			MinGoodMatchSize:   c.Matcher.MinGoodMatchSize,
		},
		Association: AssociationConfig{
			DirThresholdDeg: c.Association.DirThresholdDeg,
			DisThreshold:    c.Association.DisThreshold,
			DepthGate:       c.Association.DepthGate,
			DescriptorMax:   c.Association.DescriptorMax,
		},
		ICP: ICPConfig{
			MaxIterations:     c.Tracker.ICPIterations,
			ConvergenceThresh: c.Tracker.ICPTfEpsilon,
			MaxCorrespondDist: c.Tracker.ICPMaxDistance,
			OutlierPercentile: 0.8,
			ScoreThreshold:    c.Tracker.ICPScoreThreshold,
		},
		PnP: PnPConfig{
			Iterations:        c.Tracker.PnPIterations,
			ReprojectionError: c.Tracker.PnPReprojectError,
			MinInlier:         c.Tracker.PnPMinInlier,
			SampleSize:        6,
		},
		RansacIterations:          c.Tracker.RansacIterations,
		RansacSampleSize:          c.Tracker.RansacSampleSize,
		RansacMinInlier:           c.Tracker.RansacMinInlier,
		RansacInlierMaxMahalDist:  c.Tracker.RansacInlierMaxMahalDist,
		MaxTranslation:            c.Tracker.MaxTranslation,
		MaxRotationDeg:            c.Tracker.MaxRotationDeg,
		PlaneNonDegenerateAngleDeg: 15,
		MinMatchesForGeometric:    20,
	}
}

// LoadConfig loads the unified SLAM configuration from a YAML file,
// filling in defaults for anything unset before validating required fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("slam: config file not found: %s", path)
		}
		return nil, fmt.Errorf("slam: reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("slam: parsing config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields that must be positive/non-empty for the
// pipeline to run at all.
func (c Config) Validate() error {
	if c.Tracker.RansacIterations <= 0 {
		return fmt.Errorf("slam: tracker.ransac_iterations must be positive")
	}
	if c.Orchestrator.WorkerPoolSize <= 0 {
		return fmt.Errorf("slam: orchestrator.worker_pool_size must be positive")
	}
	if c.Orchestrator.SkipMessageModulo <= 0 {
		return fmt.Errorf("slam: orchestrator.skip_message_modulo must be positive")
	}
	if c.Output.OutputDir == "" {
		return fmt.Errorf("slam: output.output_dir is required")
	}
	return nil
}

// SaveConfig persists a configuration to a YAML file.
func SaveConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("slam: marshaling config YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("slam: writing config file: %w", err)
	}
	return nil
}
