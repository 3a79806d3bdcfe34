package server

import (
	"net/http"

	"github.com/54b3r/reliefconnect/internal/catalog"
)

// handleCreateProduct handles POST /api/products.
func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Records.CreateProduct(r.Context(), &p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, resultResponse{Success: true, Result: &p})
}

// handleListProducts handles GET /api/products?category=&priority=&page=&size=.
func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		writeError(w, r, err)
		return
	}
	size, err := queryInt(r, "size")
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	list, err := s.deps.Records.ListProducts(r.Context(), catalog.ProductFilter{
		Category: q.Get("category"),
		Priority: q.Get("priority"),
		Page:     page,
		Size:     size,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*catalog.Product{}
	}
	writeJSON(w, r, http.StatusOK, resultResponse{Success: true, Result: list})
}

// handleGetProduct handles GET /api/products/{id}.
func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Records.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resultResponse{Success: true, Result: p})
}

// handleUpdateProduct handles PUT /api/products/{id}. The path id wins over
// any id in the body.
func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	p.ID = r.PathValue("id")
	if err := s.deps.Records.UpdateProduct(r.Context(), &p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resultResponse{Success: true, Result: &p})
}

// handleDeleteProduct handles DELETE /api/products/{id}.
func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Records.DeleteProduct(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, messageResponse{Success: true, Message: "Product Deleted!"})
}

// handleCreateOrder handles POST /api/orders.
func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var o catalog.Order
	if err := decodeJSON(w, r, &o); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Records.CreateOrder(r.Context(), &o); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, resultResponse{Success: true, Result: &o})
}

// handleListOrders handles GET /api/orders?userId=&page=&size=.
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		writeError(w, r, err)
		return
	}
	size, err := queryInt(r, "size")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.deps.Records.ListOrders(r.Context(), catalog.OrderFilter{
		UserID: r.URL.Query().Get("userId"),
		Page:   page,
		Size:   size,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*catalog.Order{}
	}
	writeJSON(w, r, http.StatusOK, resultResponse{Success: true, Result: list})
}

// handleGetOrder handles GET /api/orders/{id}.
func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.deps.Records.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resultResponse{Success: true, Result: o})
}

// handleUpdateOrder handles PUT /api/orders/{id}.
func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var o catalog.Order
	if err := decodeJSON(w, r, &o); err != nil {
		writeError(w, r, err)
		return
	}
	o.ID = r.PathValue("id")
	if err := s.deps.Records.UpdateOrder(r.Context(), &o); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resultResponse{Success: true, Result: &o})
}

// handleDeleteOrder handles DELETE /api/orders/{id}.
func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Records.DeleteOrder(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, messageResponse{Success: true, Message: "Order Deleted!"})
}
