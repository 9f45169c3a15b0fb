package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/flicky/reptile-store-api/internal/dto"
	"github.com/flicky/reptile-store-api/internal/media"
	"github.com/flicky/reptile-store-api/internal/model"
	"github.com/flicky/reptile-store-api/internal/repository"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidProduct  = errors.New("invalid product")
)

const (
	productCacheTTL = 60 * time.Second
	laidDateLayout  = "2006-01-02"
)

type ProductService struct {
	productRepo  repository.ProductRepository
	categoryRepo repository.CategoryRepository
	redisClient  *redis.Client
	uploader     media.Uploader
}

func NewProductService(
	productRepo repository.ProductRepository,
	categoryRepo repository.CategoryRepository,
	redisClient *redis.Client,
	uploader media.Uploader,
) *ProductService {
	return &ProductService{
		productRepo:  productRepo,
		categoryRepo: categoryRepo,
		redisClient:  redisClient,
		uploader:     uploader,
	}
}

func (s *ProductService) Create(ctx context.Context, req dto.CreateProductRequest) (*dto.ProductResponse, error) {
	product := &model.Product{
		Name:            req.Name,
		Description:     req.Description,
		Price:           req.Price,
		Stock:           req.Stock,
		CategoryID:      req.CategoryID,
		ImageURL:        req.ImageURL,
		IsAnimal:        req.IsAnimal,
		MaleQuantity:    req.MaleQuantity,
		FemaleQuantity:  req.FemaleQuantity,
		UnknownQuantity: req.UnknownQuantity,
	}
	if err := applyLaidDate(product, req.LaidDate); err != nil {
		return nil, err
	}
	if err := s.validate(ctx, product); err != nil {
		return nil, err
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	resp := toProductResponse(product)
	return &resp, nil
}

func (s *ProductService) GetByID(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error) {
	cacheKey := productCacheKey(id)

	if s.redisClient != nil {
		if cached, err := s.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var resp dto.ProductResponse
			if json.Unmarshal([]byte(cached), &resp) == nil {
				return &resp, nil
			}
		}
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	resp := toProductResponse(product)

	if s.redisClient != nil {
		if data, err := json.Marshal(resp); err == nil {
			s.redisClient.Set(ctx, cacheKey, data, productCacheTTL)
		}
	}

	return &resp, nil
}

func (s *ProductService) List(ctx context.Context, req dto.ListProductsRequest) (*dto.ProductListResponse, error) {
	filter := repository.ProductFilter{
		Limit:  req.Limit,
		Offset: (req.Page - 1) * req.Limit,
		Search: req.Search,
		Sort:   req.Sort,
		Order:  req.Order,
	}
	if req.CategoryID != "" {
		id, err := uuid.Parse(req.CategoryID)
		if err != nil {
			return nil, fmt.Errorf("%w: bad category id", ErrInvalidProduct)
		}
		filter.CategoryID = &id
	}

	products, total, err := s.productRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	items := make([]dto.ProductResponse, 0, len(products))
	for _, p := range products {
		items = append(items, toProductResponse(&p))
	}

	return &dto.ProductListResponse{Products: items, Total: total, Page: req.Page, Limit: req.Limit}, nil
}

func (s *ProductService) Update(ctx context.Context, id uuid.UUID, req dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.Stock != nil {
		product.Stock = req.Stock
	}
	if req.CategoryID != nil {
		product.CategoryID = req.CategoryID
	}
	if req.ImageURL != nil {
		product.ImageURL = *req.ImageURL
	}
	if req.IsAnimal != nil {
		product.IsAnimal = *req.IsAnimal
	}
	if req.MaleQuantity != nil {
		product.MaleQuantity = *req.MaleQuantity
	}
	if req.FemaleQuantity != nil {
		product.FemaleQuantity = *req.FemaleQuantity
	}
	if req.UnknownQuantity != nil {
		product.UnknownQuantity = *req.UnknownQuantity
	}
	if err := applyLaidDate(product, req.LaidDate); err != nil {
		return nil, err
	}
	if err := s.validate(ctx, product); err != nil {
		return nil, err
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	s.Invalidate(ctx, id)
	resp := toProductResponse(product)
	return &resp, nil
}

func (s *ProductService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.productRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProductNotFound
		}
		return fmt.Errorf("delete product: %w", err)
	}
	s.Invalidate(ctx, id)
	return nil
}

// UploadImage stores the image with the configured uploader and saves its URL on the product.
func (s *ProductService) UploadImage(ctx context.Context, id uuid.UUID, r io.Reader, filename string) (*dto.ProductResponse, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	url, err := media.UploadStream(ctx, s.uploader, r, filename)
	if err != nil {
		return nil, err
	}
	if err := s.productRepo.UpdateImage(ctx, id, url); err != nil {
		return nil, fmt.Errorf("save image url: %w", err)
	}
	product.ImageURL = url

	s.Invalidate(ctx, id)
	resp := toProductResponse(product)
	return &resp, nil
}

// Invalidate drops cached product responses.
func (s *ProductService) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	if s.redisClient == nil || len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productCacheKey(id))
	}
	s.redisClient.Del(ctx, keys...)
}

func (s *ProductService) validate(ctx context.Context, p *model.Product) error {
	if p.Price.LessThan(decimal.Zero) {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	if !p.IsAnimal && p.Stock == nil {
		return fmt.Errorf("%w: stock is required for non-animal products", ErrInvalidProduct)
	}
	if p.CategoryID != nil {
		cat, err := s.categoryRepo.GetByID(ctx, *p.CategoryID)
		if err != nil {
			return fmt.Errorf("get category: %w", err)
		}
		if cat == nil {
			return ErrCategoryNotFound
		}
	}
	return nil
}

func applyLaidDate(p *model.Product, raw *string) error {
	if raw == nil {
		return nil
	}
	if *raw == "" {
		p.LaidDate = nil
		return nil
	}
	d, err := time.Parse(laidDateLayout, *raw)
	if err != nil {
		return fmt.Errorf("%w: laid_date must be YYYY-MM-DD", ErrInvalidProduct)
	}
	p.LaidDate = &d
	return nil
}

func productCacheKey(id uuid.UUID) string { return "product:" + id.String() }

func toProductResponse(p *model.Product) dto.ProductResponse {
	resp := dto.ProductResponse{
		ID:                p.ID,
		Name:              p.Name,
		Description:       p.Description,
		Price:             p.Price,
		Stock:             p.Stock,
		CategoryID:        p.CategoryID,
		ImageURL:          p.ImageURL,
		IsAnimal:          p.IsAnimal,
		MaleQuantity:      p.MaleQuantity,
		FemaleQuantity:    p.FemaleQuantity,
		UnknownQuantity:   p.UnknownQuantity,
		AvailableQuantity: p.AvailableQuantity(),
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	if p.LaidDate != nil {
		d := p.LaidDate.Format(laidDateLayout)
		resp.LaidDate = &d
	}
	return resp
}
