package indexer

// Standard Newznab categories.
// https://newznab.readthedocs.io/en/latest/misc/api/#predefined-categories
const (
	CategoryMovies = 2000
	CategoryAudio  = 3000
	CategoryTV     = 5000
	CategoryBooks  = 7000

	CategoryMoviesSD     = 2030
	CategoryMoviesHD     = 2040
	CategoryMoviesUHD    = 2045
	CategoryMoviesBluRay = 2050
	CategoryMoviesWebDL  = 2080

	CategoryTVSD    = 5030
	CategoryTVHD    = 5040
	CategoryTVUHD   = 5045
	CategoryTVAnime = 5070
	CategoryTVWebDL = 5090
)

// MovieCategories returns all movie-related categories.
func MovieCategories() []int {
	return []int{
		CategoryMovies,
		CategoryMoviesSD,
		CategoryMoviesHD,
		CategoryMoviesUHD,
		CategoryMoviesBluRay,
		CategoryMoviesWebDL,
	}
}

// TVCategories returns all TV-related categories.
func TVCategories() []int {
	return []int{
		CategoryTV,
		CategoryTVSD,
		CategoryTVHD,
		CategoryTVUHD,
		CategoryTVAnime,
		CategoryTVWebDL,
	}
}
