package weaponService

import (
	"WeaponGuard/internal/api/weapon"
	weaponRepository "WeaponGuard/internal/api/weapon/repository"
	"WeaponGuard/pkg/model"
	"WeaponGuard/pkg/redis"
	"WeaponGuard/pkg/s3"
	"WeaponGuard/pkg/utils"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type IWeaponService interface {
	Detect(ctx context.Context, req weapon.DetectRequest) (*weapon.DetectResponse, error)
	ModelStatus() weapon.ModelStatus
	WeaponClasses() []string
	ListDetections(ctx context.Context, query weapon.ListDetectionsQuery) (*weapon.DetectionHistoryResponse, error)
	GetDetection(ctx context.Context, id string) (*weapon.DetectionRecordResponse, error)
	GetStats(ctx context.Context) (*weapon.DetectionStatsResponse, error)
}

type weaponService struct {
	log              *logrus.Logger
	model            *model.Handle
	classMap         weapon.ClassMap
	utils            utils.IUtils
	weaponRepository weaponRepository.Repository
	cache            redis.IRedis
	s3               s3.ItfS3
}

// NewWeaponService builds the detection service. repo, cache and s3Client are
// optional; a nil value disables history, caching or image storage.
func NewWeaponService(
	log *logrus.Logger,
	handle *model.Handle,
	classMap weapon.ClassMap,
	utils utils.IUtils,
	repo weaponRepository.Repository,
	cache redis.IRedis,
	s3Client s3.ItfS3,
) IWeaponService {
	return &weaponService{
		log:              log,
		model:            handle,
		classMap:         classMap,
		utils:            utils,
		weaponRepository: repo,
		cache:            cache,
		s3:               s3Client,
	}
}

func (s *weaponService) ModelStatus() weapon.ModelStatus {
	status := weapon.ModelStatus{
		Loaded:    s.model.Loaded(),
		ModelType: s.model.Type(),
	}
	if err := s.model.Err(); err != nil {
		status.Error = err.Error()
	}
	return status
}

func (s *weaponService) WeaponClasses() []string {
	return s.classMap.Taxonomy()
}
